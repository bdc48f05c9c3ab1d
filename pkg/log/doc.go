/*
Package log provides structured logging for foodie using zerolog.

A single package-level zerolog.Logger is configured once by Init and shared by
every component. Components derive child loggers that carry identifying
fields, so log lines can be filtered by order, subscriber or request.

# Configuration

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,      // false = human-readable console output
		Output:     os.Stdout, // any io.Writer
	})

Unknown levels fall back to info.

# Context Loggers

  - WithComponent("gateway"): component name
  - WithOrderID(id): order_id field
  - WithSubscriberID(id): subscriber_id field
  - WithRequestID(id): request_id field

# Conventions

Messages are lower case and describe what happened ("order placed",
"subscriber disconnected"). Values go in fields, not in the message:

	logger := log.WithOrderID(order.ID)
	logger.Info().
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("order transitioned")

Errors use .Err(err). Debug is for per-event noise such as analytics
broadcasts; info is for lifecycle; warn is for recoverable trouble such as a
dropped event; error is for failed operations.
*/
package log
