// Package logx is roomcast's structured logger, a thin layer over zerolog.
//
// Console output is human readable, file output is JSON, and warnings can
// be forwarded to an operator chat through a rate-limited Sender.
package logx
