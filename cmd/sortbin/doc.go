// Command sortbin runs the smart bin daemon and inspects it from the shell.
//
// "sortbin daemon" serves the capture device and management API in the
// foreground. The remaining commands talk to a running daemon over its HTTP
// API: status, users, session, and notify. "sortbin config" manages the TOML
// configuration file.
package main
