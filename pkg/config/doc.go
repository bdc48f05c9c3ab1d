/*
Package config loads the YAML configuration of a foodie server.

Every field has a default (see Default), so a file only needs the values it
changes:

	server:
	  http_addr: :8080
	  grpc_health_addr: :8081
	storage:
	  driver: postgres        # bolt (default) or postgres
	  dsn: postgres://foodie@db/foodie?sslmode=disable
	redis:
	  addr: redis:6379        # enables the menu cache
	kafka:
	  brokers: [kafka:9092]   # enables the event relay

Durations use Go syntax ("10s", "1m30s"). Unknown keys are an error.
Command line flags of "foodie serve" override the loaded values.
*/
package config
