/*
Package log provides structured logging for ukvdb using zerolog.

The global Logger is configured once via Init and then specialized per
package with WithComponent ("kv", "txn", "docs", "graph", "paths", "arena",
"server"), or with WithState to also attach collection, transaction, and
generation fields across an operation's log lines. Init writes JSON when
Config.JSONOutput is set and console output with an RFC 3339 timestamp
otherwise.
*/
package log
