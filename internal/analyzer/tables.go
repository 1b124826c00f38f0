package analyzer

import "github.com/loopguard/loopguard/internal/violation"

// callRule describes one entry in a call lookup table.
type callRule struct {
	kind       violation.Kind
	severity   violation.Severity
	message    string
	suggestion string
}

// blockingCalls are operations that halt the whole event loop. Any worker
// serving requests from a cooperative scheduler must never call these.
var blockingCalls = map[string]callRule{
	"sleep": {violation.KindBlockingCall, violation.SeverityError,
		"sleep() suspends the entire event loop for its full duration",
		"schedule a timer on the event loop instead of sleeping"},
	"usleep": {violation.KindBlockingCall, violation.SeverityError,
		"usleep() suspends the entire event loop",
		"schedule a timer on the event loop instead of sleeping"},
	"time_nanosleep": {violation.KindBlockingCall, violation.SeverityError,
		"time_nanosleep() suspends the entire event loop",
		"schedule a timer on the event loop instead of sleeping"},
	"time_sleep_until": {violation.KindBlockingCall, violation.SeverityError,
		"time_sleep_until() suspends the entire event loop",
		"schedule a timer on the event loop instead of sleeping"},
	"file_get_contents": {violation.KindBlockingCall, violation.SeverityError,
		"file_get_contents() performs synchronous I/O and blocks all in-flight requests",
		"use the runtime's async filesystem or HTTP client"},
	"file_put_contents": {violation.KindBlockingCall, violation.SeverityError,
		"file_put_contents() performs synchronous I/O and blocks all in-flight requests",
		"use the runtime's async filesystem client"},
	"fopen": {violation.KindBlockingCall, violation.SeverityError,
		"fopen() performs synchronous I/O",
		"use the runtime's async filesystem client"},
	"fread": {violation.KindBlockingCall, violation.SeverityError,
		"fread() performs synchronous I/O",
		"use the runtime's async filesystem client"},
	"fwrite": {violation.KindBlockingCall, violation.SeverityError,
		"fwrite() performs synchronous I/O",
		"use the runtime's async filesystem client"},
	"curl_exec": {violation.KindBlockingCall, violation.SeverityError,
		"curl_exec() blocks the event loop until the remote server responds",
		"use the runtime's async HTTP client"},
	"curl_multi_exec": {violation.KindBlockingCall, violation.SeverityError,
		"curl_multi_exec() blocks the event loop while polling transfers",
		"use the runtime's async HTTP client"},
	"exec": {violation.KindBlockingCall, violation.SeverityError,
		"exec() blocks until the child process exits",
		"use the runtime's async process launcher"},
	"shell_exec": {violation.KindBlockingCall, violation.SeverityError,
		"shell_exec() blocks until the child process exits",
		"use the runtime's async process launcher"},
	"system": {violation.KindBlockingCall, violation.SeverityError,
		"system() blocks until the child process exits",
		"use the runtime's async process launcher"},
	"passthru": {violation.KindBlockingCall, violation.SeverityError,
		"passthru() blocks until the child process exits",
		"use the runtime's async process launcher"},
	"proc_open": {violation.KindBlockingCall, violation.SeverityError,
		"proc_open() pipes block the event loop on synchronous reads",
		"use the runtime's async process launcher"},
	"popen": {violation.KindBlockingCall, violation.SeverityError,
		"popen() pipes block the event loop on synchronous reads",
		"use the runtime's async process launcher"},
	"fsockopen": {violation.KindBlockingCall, violation.SeverityError,
		"fsockopen() opens a synchronous socket connection",
		"use the runtime's async socket connector"},
	"stream_socket_client": {violation.KindBlockingCall, violation.SeverityError,
		"stream_socket_client() opens a synchronous socket connection",
		"use the runtime's async socket connector"},
	"pg_query": {violation.KindBlockingCall, violation.SeverityError,
		"pg_query() blocks the event loop until the database responds",
		"use an async database client"},
	"mysqli_query": {violation.KindBlockingCall, violation.SeverityError,
		"mysqli_query() blocks the event loop until the database responds",
		"use an async database client"},
	"exit": {violation.KindBlockingCall, violation.SeverityError,
		"exit terminates the worker process and kills every in-flight request",
		"return a response and let the server decide the process lifecycle"},
	"die": {violation.KindBlockingCall, violation.SeverityError,
		"die terminates the worker process and kills every in-flight request",
		"return a response and let the server decide the process lifecycle"},
}

// warningCalls are safe in a one-request-per-process model but dangerous
// when many requests share one long-lived process.
var warningCalls = map[string]callRule{
	"session_start": {violation.KindUnsafeCall, violation.SeverityWarning,
		"session_start() binds an ambient session store to the whole process",
		"use the server's per-request session API"},
	"header": {violation.KindUnsafeCall, violation.SeverityWarning,
		"header() mutates process-wide response state outside the response object",
		"set headers on the response object for this request"},
	"setcookie": {violation.KindUnsafeCall, violation.SeverityWarning,
		"setcookie() mutates process-wide response state outside the response object",
		"set cookies on the response object for this request"},
	"setlocale": {violation.KindUnsafeCall, violation.SeverityWarning,
		"setlocale() changes locale for every request served by this process",
		"format values explicitly with an intl formatter per request"},
	"putenv": {violation.KindUnsafeCall, violation.SeverityWarning,
		"putenv() mutates the process environment seen by all requests",
		"thread configuration through explicit request or app state"},
	"ini_set": {violation.KindUnsafeCall, violation.SeverityWarning,
		"ini_set() changes runtime configuration for every request",
		"configure the runtime once at bootstrap"},
	"chdir": {violation.KindUnsafeCall, violation.SeverityWarning,
		"chdir() changes the working directory for every request",
		"use absolute paths"},
	"umask": {violation.KindUnsafeCall, violation.SeverityWarning,
		"umask() changes file-creation permissions for every request",
		"pass explicit permissions to file operations"},
	"date_default_timezone_set": {violation.KindUnsafeCall, violation.SeverityWarning,
		"date_default_timezone_set() changes the timezone for every request",
		"construct DateTime values with an explicit timezone"},
	"error_reporting": {violation.KindUnsafeCall, violation.SeverityWarning,
		"error_reporting() changes diagnostics verbosity for every request",
		"configure error reporting once at bootstrap"},
}

// superglobals maps each process-wide mutable variable to the safe
// per-request alternative named in its suggestion.
var superglobals = map[string]string{
	"_GET":     "read query parameters from the request object",
	"_POST":    "read the parsed body from the request object",
	"_COOKIE":  "read cookies from the request object",
	"_REQUEST": "read inputs from the request object",
	"_SERVER":  "read server/connection facts from the request object",
	"_SESSION": "use the server's per-request session API",
	"_FILES":   "read uploads from the request object",
	"_ENV":     "read configuration from injected app state",
	"GLOBALS":  "thread state through explicit function parameters",
}
