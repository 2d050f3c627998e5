package leaudio

import (
	"context"

	"github.com/blesnip/leaudio-snippet/pkg/snippet"
)

// Rpcs returns the snippet's methods under the names used by the test harness.
func (s *Snippet) Rpcs() []snippet.Method {
	return []snippet.Method{
		{
			Name:        "LeAudioConnectGatt",
			Description: "Start LE Audio client Connect.",
			Async:       true,
			Handler: func(_ context.Context, p snippet.Params) (interface{}, error) {
				callbackID, err := p.String(0)
				if err != nil {
					return nil, err
				}
				address, err := p.String(1)
				if err != nil {
					return nil, err
				}
				return nil, s.ConnectGatt(callbackID, address)
			},
		},
		{
			Name:        "LeAudioDisconnect",
			Description: "Stop BLE client.",
			Handler: func(context.Context, snippet.Params) (interface{}, error) {
				return nil, s.Disconnect()
			},
		},
		{
			Name:        "LeAudioPlayMedia",
			Description: "Play media from a local path, file:// or http(s):// URI.",
			Handler: func(ctx context.Context, p snippet.Params) (interface{}, error) {
				uri, err := p.String(0)
				if err != nil {
					return nil, err
				}
				return nil, s.PlayMedia(ctx, uri)
			},
		},
		{
			Name:        "LeAudioPauseMedia",
			Description: "Pause media playback.",
			Handler: func(context.Context, snippet.Params) (interface{}, error) {
				return nil, s.PauseMedia()
			},
		},
		{
			Name:        "LeAudioStopMedia",
			Description: "Stop media playback.",
			Handler: func(context.Context, snippet.Params) (interface{}, error) {
				return nil, s.StopMedia()
			},
		},
		{
			Name:        "LeAudioDiscoverServices",
			Description: "Start BLE service discovery. Returns the start time in nanoseconds since boot.",
			Handler: func(context.Context, snippet.Params) (interface{}, error) {
				start, err := s.DiscoverServices()
				if err != nil {
					return nil, err
				}
				return start, nil
			},
		},
	}
}
