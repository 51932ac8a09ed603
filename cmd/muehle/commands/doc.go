// Package commands defines the muehle CLI and wires dependencies for subcommands.
//
// Commands
//
//   - play       Play in the terminal against the computer
//   - analyze    Answer position queries on stdin, one line each
//   - serve      Run the websocket gateway and scheduled self-play
//   - host       Load a guest module and drive it frame by frame
//   - validate   Check that a guest module implements the export table
//   - selfplay   Play computer-vs-computer games into the history
//   - history    List and show recorded games
//
// # Implementation
//
// The root command loads the configuration and builds the shared stack
// (logger, tracer, event bus, metrics, agent) before any subcommand runs.
// The game store and the WASM runtime are opened by the commands that use
// them and closed when the command returns.
package commands
