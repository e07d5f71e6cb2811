// Package probe is a diagnostic runner for the authenticated pipeline.
//
// It builds an authpipe.Client from flags, environment (a .env file is
// honoured) or a YAML options file, logs in when no persisted session exists,
// then fires concurrent calls at one protected path. The JSON report shows the
// status of every call together with how many renewals and replays the burst
// caused, which makes it easy to check that an expired session is renewed once
// and not once per call.
package probe
