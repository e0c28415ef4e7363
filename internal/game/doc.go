// Package game implements the blackjack state machine for a single player
// against a dealer.
//
// The main type is Game, which owns its hands, the dealer's hidden card and
// the remaining deck. Callers never receive references to that state: the
// accessors and Snapshot return copies, and every mutation goes through a
// transition method.
//
// # Basic Usage
//
//	d := deck.NewShuffled(randutil.New(42))
//	g, err := game.New(gameid.Generate(), playerID, d, time.Now())
//	outcome, err := g.Hit()   // non-nil outcome when the player busts
//	outcome = g.Stand()       // dealer plays, game settles
//
// # Lifecycle
//
// A game starts ACTIVE with two player cards, one visible dealer card and one
// hidden dealer card. Hit and Stand are the only transitions; both end in
// FINISHED, which is terminal. Transitions on a finished game are no-ops.
//
// # Dealer Policy
//
// On Stand the hidden card is revealed and the dealer draws while below 17.
// Running out of cards ends the dealer's turn early instead of failing.
//
// # Persistence
//
// Record is the storage form of a Game, including the hidden card and the
// remaining deck. FromRecord validates the lifecycle invariants on load.
package game
