/*
Package stream exposes the notification hub over websockets.

Each connection gets its own hub subscription. Two goroutines serve it: a
reader that enforces liveness and answers heartbeats, and a writer that owns
every write to the socket (events, pongs, and ping frames).

Protocol:

	server → client  {"type":"order_created","payload":{...}}
	server → client  {"type":"order_updated","payload":{...}}
	server → client  {"type":"analytics_update","payload":{...}}
	client → server  {"type":"ping"}
	server → client  {"type":"pong"}

A connection that sends nothing (no message and no websocket pong) for
Config.PongWait is closed and unsubscribed. The server also sends websocket
ping frames every Config.PingPeriod so browsers keep answering at the
transport level.
*/
package stream
