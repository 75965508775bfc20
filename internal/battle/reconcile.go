package battle

import "math"

// Resolution is the merged verdict of the two self-report slots.
type Resolution int

const (
	// ResolutionNone: one or both slots still empty, nothing to merge.
	ResolutionNone Resolution = iota
	// ResolutionCreatorWins / ResolutionAcceptorWins: claims agree on a winner.
	ResolutionCreatorWins
	ResolutionAcceptorWins
	// ResolutionVoid: both parties cancelled, stakes go back.
	ResolutionVoid
	// ResolutionContradiction: claims cannot both be true, an operator decides.
	ResolutionContradiction
)

// reconcile merges two independent self-reports into one verdict:
//
//	WON/LOSS  -> creator wins      LOSS/WON  -> acceptor wins
//	CANCELLED/CANCELLED -> void    anything else -> contradiction
func reconcile(creatorClaim, acceptorClaim string) Resolution {
	if creatorClaim == "" || acceptorClaim == "" {
		return ResolutionNone
	}
	switch {
	case creatorClaim == ClaimWon && acceptorClaim == ClaimLoss:
		return ResolutionCreatorWins
	case creatorClaim == ClaimLoss && acceptorClaim == ClaimWon:
		return ResolutionAcceptorWins
	case creatorClaim == ClaimCancelled && acceptorClaim == ClaimCancelled:
		return ResolutionVoid
	default:
		return ResolutionContradiction
	}
}

func validClaim(c string) bool {
	return c == ClaimWon || c == ClaimLoss || c == ClaimCancelled
}

// commissionFor is the platform's cut of the pooled fees at the given rate.
func commissionFor(entryFee, pct int64) int64 {
	return int64(math.Round(float64(entryFee) * float64(pct) / 100))
}

// winnerAmountFor is the winner's payout: both stakes minus the commission.
func winnerAmountFor(entryFee, pct int64) int64 {
	return entryFee*2 - commissionFor(entryFee, pct)
}

// referralCutFor is the referrer's share of the winner's entry fee.
func referralCutFor(entryFee, pct int64) int64 {
	return int64(math.Round(float64(entryFee) * float64(pct) / 100))
}

// validEntryFee enforces the stake tier: positive multiples of MinEntryFee.
func validEntryFee(amount int64) bool {
	return amount >= MinEntryFee && amount%MinEntryFee == 0
}
