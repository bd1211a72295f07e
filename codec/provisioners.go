package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/duskengine/rusk/types"
)

// EncodeProvisioners serializes a provisioner registry snapshot for the
// storage layer's per-height snapshot record (spec.md §9 "storage as
// collaborator" snapshot(at) primitive, §4.7 Rollback's "restoring the
// state snapshots").
func EncodeProvisioners(members []types.Provisioner) []byte {
	var buf bytes.Buffer
	writeUint32(&buf, uint32(len(members)))
	for _, p := range members {
		writePubkey(&buf, p.BLSPubkey)
		writeUint64(&buf, p.StakeAmount)
		writeUint64(&buf, uint64(p.EligibilityHeight))
		owner := []byte(p.OwnerAddress)
		writeUint32(&buf, uint32(len(owner)))
		buf.Write(owner)
	}
	return buf.Bytes()
}

// DecodeProvisioners is the inverse of EncodeProvisioners.
func DecodeProvisioners(data []byte) ([]types.Provisioner, error) {
	r := bytes.NewReader(data)
	count, err := readUint32(r)
	if err != nil {
		return nil, fmt.Errorf("codec: decode provisioners: %w", err)
	}
	out := make([]types.Provisioner, 0, count)
	for i := uint32(0); i < count; i++ {
		pk, err := readPubkey(r)
		if err != nil {
			return nil, fmt.Errorf("codec: decode provisioners: %w", err)
		}
		stake, err := readUint64(r)
		if err != nil {
			return nil, fmt.Errorf("codec: decode provisioners: %w", err)
		}
		eligibility, err := readUint64(r)
		if err != nil {
			return nil, fmt.Errorf("codec: decode provisioners: %w", err)
		}
		ownerLen, err := readUint32(r)
		if err != nil {
			return nil, fmt.Errorf("codec: decode provisioners: %w", err)
		}
		owner := make([]byte, ownerLen)
		if _, err := io.ReadFull(r, owner); err != nil {
			return nil, fmt.Errorf("codec: decode provisioners: %w", err)
		}
		out = append(out, types.Provisioner{
			BLSPubkey:         pk,
			StakeAmount:       stake,
			EligibilityHeight: types.Round(eligibility),
			OwnerAddress:      string(owner),
		})
	}
	return out, nil
}
