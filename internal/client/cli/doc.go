// Package cli provides the interactive StudySync command-line client.
//
// It wires configuration, the encrypted credential store, the session
// manager and the authenticated HTTP pipeline, then runs a REPL. A background
// watcher subscribed to the session manager tells the user when the session
// ends because the server rejected a refresh.
//
// Commands:
//   - register / login / logout
//   - whoami: signed-in user and access token expiry
//   - refresh: exchange the refresh token now
//   - get <path>: authenticated GET through the pipeline
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
