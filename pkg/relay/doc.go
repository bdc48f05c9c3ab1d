// Package relay mirrors notification hub events into Kafka so other
// systems can consume the order lifecycle without connecting to the
// websocket.
package relay
