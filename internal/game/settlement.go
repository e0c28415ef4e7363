package game

import (
	"github.com/lox/blackjack/internal/hand"
	"github.com/lox/blackjack/internal/player"
)

// Point deltas applied to a player's total at settlement.
const (
	WinPoints  = 2
	LossPoints = -2
	TiePoints  = 1
)

// Outcome is the result of a finished game from the player's side.
type Outcome struct {
	Winner       Participant
	PlayerStatus player.Status
	Delta        int
}

// Settle maps final player and dealer scores to an outcome. A player bust
// loses even when the dealer also busts.
func Settle(playerScore, dealerScore int) Outcome {
	switch {
	case playerScore > hand.Blackjack:
		return Outcome{Winner: Dealer, PlayerStatus: player.StatusLost, Delta: LossPoints}
	case dealerScore > hand.Blackjack:
		return Outcome{Winner: Player, PlayerStatus: player.StatusWon, Delta: WinPoints}
	case playerScore > dealerScore:
		return Outcome{Winner: Player, PlayerStatus: player.StatusWon, Delta: WinPoints}
	case playerScore < dealerScore:
		return Outcome{Winner: Dealer, PlayerStatus: player.StatusLost, Delta: LossPoints}
	default:
		return Outcome{Winner: None, PlayerStatus: player.StatusTie, Delta: TiePoints}
	}
}
