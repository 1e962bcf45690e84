/*
Package gateway wraps outbound HTTP calls with token injection, loading
signals, outcome classification and user notifications.

A call is settled in two steps. The transport accepts or rejects the HTTP
status, then the gateway checks the {code, msg, data} envelope: only the JSON
string "0" is a success, and the result is the data member. Every failure is
an *Error whose message is ready to show:

	-{status}：{text}                 server replied, or request got no reply
	interface not properly invoked   a pre-dispatch interceptor failed
	<raw message>                    the request could not be built

The loading bus sees startLoading before dispatch and exactly one
stopLoading after the call settles, whatever the outcome.
*/
package gateway
