// Package client implements the client-side protocol adapter.
//
// The adapter performs the following steps:
//  1. Connect to the server over TCP.
//  2. Wait for the one-time nick-chosen gate, then send NICK, USER and
//     JOIN for the configured channel, in that order, fire-and-forget.
//  3. Drain the outbound queue of user-typed lines strictly in FIFO
//     order, serializing each as a PRIVMSG to the configured channel.
//     The queue is the only ordering point, so submission order is
//     preserved even under concurrent Send calls.
//  4. Decode each incoming frame, extract the sender nick from the
//     prefix, and raise chat, join and part notices to the display
//     callback as plain strings. Everything else is ignored.
//
// The terminal rendering layer is an external collaborator: it feeds
// completed input lines to Send, signals ChooseNick once, and renders
// whatever the display callback hands it.
package client
