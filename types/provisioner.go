package types

// Provisioner is an account holding a locked stake eligible to
// participate in consensus (spec.md §3).
type Provisioner struct {
	BLSPubkey        BLSPubkey
	StakeAmount      uint64 // micro-tokens
	EligibilityHeight Round
	OwnerAddress     string
}

// Credit is a unit of committee voting weight; one provisioner may hold
// several.
type Credit struct {
	ProvisionerIndex int // index into the Committee's ordered member slice
	Credits          uint32
}

// Committee is the ordered multiset of (provisioner, credits) produced by
// sortition for one (round, iteration, step). Sum of credits equals the
// configured credit target (spec.md §4.3).
type Committee struct {
	Members []CommitteeMember
}

// CommitteeMember is one deterministic-order entry of a Committee.
type CommitteeMember struct {
	Pubkey  BLSPubkey
	Credits uint32
}

// TotalCredits returns the sum of every member's credits.
func (c *Committee) TotalCredits() uint32 {
	var total uint32
	for _, m := range c.Members {
		total += m.Credits
	}
	return total
}

// IndexOf returns the committee position of pubkey, or -1 if absent.
// Committee order is deterministic and is what vote bitsets index into.
func (c *Committee) IndexOf(pubkey BLSPubkey) int {
	for i, m := range c.Members {
		if m.Pubkey == pubkey {
			return i
		}
	}
	return -1
}

// CreditsOf returns the credits held by pubkey, or 0 if not a member.
func (c *Committee) CreditsOf(pubkey BLSPubkey) uint32 {
	if i := c.IndexOf(pubkey); i >= 0 {
		return c.Members[i].Credits
	}
	return 0
}
