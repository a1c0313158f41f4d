package patcher

import (
	"github.com/go-kit/log/level"
	"gitlab.com/stephen-fox/bredcrumb/iokit"
)

// patchOverlay appends the string and its terminator to the end of
// the file. No header is modified and the bytes are never mapped.
func patchOverlay(in patchInput) ([]byte, Result, error) {
	payload, err := iokit.NewPayloadBuilder().
		CString(in.tracking).
		Build()
	if err != nil {
		return nil, Result{}, err
	}

	writeOffset := len(in.data)

	level.Debug(in.logger).Log("msg", "appending overlay", "write_offset", writeOffset)

	return append(in.data, payload...), Result{
		StrategyUsed: StrategyOverlay.String(),
		FileOffset:   uint64(writeOffset),
	}, nil
}
