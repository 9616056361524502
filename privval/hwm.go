package privval

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/tendermint/kms/types"
)

// formatHWM renders slot as "height/round/pol_round/msg_type\n".
func formatHWM(slot types.Slot) string {
	return fmt.Sprintf("%d/%d/%d/%d\n", slot.Height, slot.Round, slot.POLRound, uint32(slot.Type))
}

// parseHWM is strict: anything but four decimal fields naming a valid slot
// is rejected.
func parseHWM(bz []byte) (types.Slot, error) {
	line := string(bytes.TrimSuffix(bz, []byte("\n")))
	parts := strings.Split(line, "/")
	if len(parts) != 4 {
		return types.Slot{}, fmt.Errorf("malformed record %q: want height/round/pol_round/msg_type", line)
	}

	var nums [3]int64
	for i := 0; i < 3; i++ {
		n, err := strconv.ParseInt(parts[i], 10, 64)
		if err != nil {
			return types.Slot{}, fmt.Errorf("malformed record %q: %w", line, err)
		}
		nums[i] = n
	}
	code, err := strconv.ParseUint(parts[3], 10, 32)
	if err != nil {
		return types.Slot{}, fmt.Errorf("malformed record %q: %w", line, err)
	}

	slot := types.Slot{
		Height:   nums[0],
		Round:    nums[1],
		POLRound: nums[2],
		Type:     types.SignedMsgType(code),
	}
	switch {
	case slot.Height < 0 || slot.Round < 0:
		return types.Slot{}, fmt.Errorf("malformed record %q: negative height or round", line)
	case slot.POLRound < types.NoPOLRound:
		return types.Slot{}, fmt.Errorf("malformed record %q: pol_round below %d", line, types.NoPOLRound)
	case slot.Type != types.ProposalType && !types.IsVoteTypeValid(slot.Type):
		return types.Slot{}, fmt.Errorf("malformed record %q: unknown msg_type %d", line, code)
	}
	return slot, nil
}
