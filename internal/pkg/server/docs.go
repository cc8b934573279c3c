// Package server implements the chat server: the directory of nicks,
// registered users and channels, and the per-connection command loop.
//
// The server performs the following steps:
//  1. Listens on a TCP port and accepts client connections concurrently.
//  2. Wraps each connection in a Session and runs a loop that reads one
//     CRLF-terminated frame at a time, decodes it, and dispatches on the
//     uppercased command name via a table validated at construction.
//  3. Registration follows NICK then USER; USER with fewer than four
//     parameters yields NEEDMOREPARAMS and a repeated USER yields
//     ALREADYREGISTRED without touching state.
//  4. JOIN creates channels lazily, announces the join to the new
//     membership (joiner included) and answers NOTOPIC, NAMREPLY and
//     ENDOFNAMES. PART and QUIT announce the departure before the
//     membership is pruned.
//  5. PRIVMSG fans out to a channel (sender excluded) or forwards to a
//     single peer; unknown targets get NOSUCHNICK.
//  6. Malformed frames are dropped and the connection continues; only
//     transport errors end a connection, at which point the session is
//     removed from every index exactly once.
//
// Channel fan-out is concurrent and best-effort: the broadcast waits for
// all recipients up to a fixed deadline and abandons whatever is still
// pending, so one slow client cannot block delivery to healthy peers.
package server
