// Package commands wires the CLI surface of keysync.
//
// Every command goes through the orchestrator in internal/app; nothing here
// touches the keyring or the network directly. The persistent flags select
// the keyring directory, the sync server and the passphrase protecting the
// keyring at rest.
//
// Typical flows:
//
//	keysync enable                 # first device: bootstraps the team keys
//	keysync pair                   # trusted device: display a one-time code
//	keysync join AB3D7F            # new device: redeem the code, receive keys
//	keysync devices list
//	keysync reset --reason "lost device"
package commands
