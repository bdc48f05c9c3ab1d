/*
Package events provides the in-memory notification hub for foodie.

The Broker fans order and analytics events out to every live subscriber,
typically one per connected dashboard websocket (see package stream) plus the
optional Kafka relay. Delivery is best effort: there is no persistence and no
replay, and a subscriber that falls behind loses events rather than slowing
down anyone else.

# Architecture

	┌──────────────────── NOTIFICATION HUB ────────────────────┐
	│                                                            │
	│   orders.Machine ──┐                                       │
	│                    ├──► Publish(type, payload)             │
	│   analytics ───────┘          │                            │
	│                               ▼                            │
	│                  Event Channel (buffer: 100)               │
	│                               │                            │
	│                       Broadcast Loop                       │
	│                      (single goroutine)                    │
	│                               │                            │
	│          ┌────────────────────┼───────────────────┐        │
	│          ▼                    ▼                   ▼        │
	│   Subscription C        Subscription C      Subscription C │
	│   (buffer: 50)          (buffer: 50)        (buffer: 50)   │
	│          │                    │                   │        │
	│       /ws conn             /ws conn          kafka relay   │
	└────────────────────────────────────────────────────────────┘

A single loop drains the publish queue, so every subscriber sees events in
publish order. Sends to subscriber channels never block: when a buffer is
full the event is dropped for that subscriber and
foodie_hub_events_dropped_total is incremented.

# Event Types

	order_created     payload: the new order
	order_updated     payload: the order after a status or payment change
	analytics_update  payload: an AnalyticsSnapshot

On the wire an event is {"type": "<event type>", "payload": <json>}.

# Subscriptions

Subscribe returns a *Subscription carrying an opaque ID and a receive-only
channel. Unsubscribe may be called any number of times. Both Unsubscribe and
Stop close the channel, so a consumer can simply range over it:

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	for ev := range sub.C {
		data, _ := ev.Encode()
		conn.WriteMessage(websocket.TextMessage, data)
	}

# Presence

OnPresence listeners are called when the subscriber count moves from 0 to 1
and from 1 to 0. The analytics aggregator uses this to run only while
somebody is watching. Listeners run under the broker's presence lock and
must return quickly.
*/
package events
