// Package main hosts the mediahub CLI entrypoint and command graph.
//
// One binary plays every role: `mediahub hub` runs the daemon in the
// foreground, `mediahub converter` runs the transcode worker the hub
// supervises, and the remaining commands are thin clients that send one
// request over the hub socket and render the reply.
//
// Keep this package declarative. Behavior belongs in the internal packages;
// commands here resolve configuration, dial the socket and format output.
package main
