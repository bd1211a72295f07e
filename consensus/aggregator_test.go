package consensus

import (
	"testing"

	"github.com/duskengine/rusk/bls"
	"github.com/duskengine/rusk/types"
)

func committeeOf(t *testing.T, n int) (types.Committee, []*bls.SecretKey) {
	t.Helper()
	committee := types.Committee{}
	keys := make([]*bls.SecretKey, n)
	for i := 0; i < n; i++ {
		ikm := make([]byte, 32)
		ikm[0] = byte(i + 1)
		sk, err := bls.KeyGen(ikm)
		if err != nil {
			t.Fatalf("keygen: %v", err)
		}
		keys[i] = sk
		committee.Members = append(committee.Members, types.CommitteeMember{Pubkey: sk.PublicKey(), Credits: 1})
	}
	return committee, keys
}

func TestAggregatorReachesQuorum(t *testing.T) {
	committee, keys := committeeOf(t, 3)
	header := types.Header{Round: 1, Iteration: 0, Step: types.StepValidation}
	agg := NewAggregator(header, committee)

	vote := types.ValidVote(types.Hash{1, 2, 3})
	digest := types.StepDigest(header.Round, header.Iteration, header.Step, vote.BlockHash)

	result, sv, _ := agg.Insert(header, keys[0].PublicKey(), vote, bls.Sign(keys[0], digest[:]))
	if result != ResultPending {
		t.Fatalf("expected pending after 1/3, got %v", result)
	}
	if sv != nil {
		t.Fatal("expected no StepVotes before quorum")
	}

	result, sv, _ = agg.Insert(header, keys[1].PublicKey(), vote, bls.Sign(keys[1], digest[:]))
	if result != ResultQuorum {
		t.Fatalf("expected quorum at 2/3 credits, got %v", result)
	}
	if sv == nil {
		t.Fatal("expected StepVotes on quorum")
	}
	if sv.Bitset&0b011 != 0b011 {
		t.Fatalf("expected bitset to mark first two members, got %b", sv.Bitset)
	}
}

func TestAggregatorDuplicateAndEquivocation(t *testing.T) {
	committee, keys := committeeOf(t, 3)
	header := types.Header{Round: 1, Iteration: 0, Step: types.StepValidation}
	agg := NewAggregator(header, committee)

	voteA := types.ValidVote(types.Hash{1})
	voteB := types.InvalidVote(types.Hash{1})
	digestA := types.StepDigest(header.Round, header.Iteration, header.Step, voteA.BlockHash)
	digestB := types.StepDigest(header.Round, header.Iteration, header.Step, voteB.BlockHash)

	if result, _, _ := agg.Insert(header, keys[0].PublicKey(), voteA, bls.Sign(keys[0], digestA[:])); result != ResultPending {
		t.Fatalf("expected pending, got %v", result)
	}
	if result, _, _ := agg.Insert(header, keys[0].PublicKey(), voteA, bls.Sign(keys[0], digestA[:])); result != ResultDuplicate {
		t.Fatalf("expected duplicate, got %v", result)
	}

	if result, _, _ := agg.Insert(header, keys[1].PublicKey(), voteB, bls.Sign(keys[1], digestB[:])); result != ResultPending {
		t.Fatalf("expected pending, got %v", result)
	}
	if result, _, evidence := agg.Insert(header, keys[1].PublicKey(), voteA, bls.Sign(keys[1], digestA[:])); result != ResultEquivocation {
		t.Fatalf("expected equivocation, got %v", result)
	} else if evidence == nil || !evidence.PriorVote.Equal(voteB) {
		t.Fatalf("expected equivocation evidence to carry the prior vote, got %+v", evidence)
	}
}

func TestAggregatorNotInCommitteeAndWrongStep(t *testing.T) {
	committee, keys := committeeOf(t, 2)
	header := types.Header{Round: 1, Iteration: 0, Step: types.StepValidation}
	agg := NewAggregator(header, committee)

	outsider, err := bls.KeyGen(make([]byte, 32))
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	outsider.PublicKey() // distinct from committee members since zero ikm differs

	vote := types.ValidVote(types.Hash{9})
	digest := types.StepDigest(header.Round, header.Iteration, header.Step, vote.BlockHash)
	if result, _, _ := agg.Insert(header, outsider.PublicKey(), vote, bls.Sign(outsider, digest[:])); result != ResultNotInCommittee {
		t.Fatalf("expected not_in_committee, got %v", result)
	}

	wrongHeader := types.Header{Round: 2, Iteration: 0, Step: types.StepValidation}
	if result, _, _ := agg.Insert(wrongHeader, keys[0].PublicKey(), vote, bls.Sign(keys[0], digest[:])); result != ResultWrongStep {
		t.Fatalf("expected wrong_step, got %v", result)
	}
}

func TestAggregatorThreshold(t *testing.T) {
	committee, _ := committeeOf(t, 3)
	agg := NewAggregator(types.Header{}, committee)
	if agg.Threshold() != 2 {
		t.Fatalf("expected ceil(2*3/3)=2, got %d", agg.Threshold())
	}
}
