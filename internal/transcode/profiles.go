package transcode

import (
	"sort"

	"thirdcoast.systems/relay/internal/faults"
)

// Profile is a target rendition for playback compatibility.
type Profile struct {
	Name      string
	MaxHeight int
	AudioOnly bool
}

// Ext is the file extension of encoded output.
func (p Profile) Ext() string {
	if p.AudioOnly {
		return ".m4a"
	}
	return ".mp4"
}

// ContentType is the MIME type served for the profile.
func (p Profile) ContentType() string {
	if p.AudioOnly {
		return "audio/mp4"
	}
	return "video/mp4"
}

var profiles = map[string]Profile{
	"360p":  {Name: "360p", MaxHeight: 360},
	"480p":  {Name: "480p", MaxHeight: 480},
	"720p":  {Name: "720p", MaxHeight: 720},
	"1080p": {Name: "1080p", MaxHeight: 1080},
	"audio": {Name: "audio", AudioOnly: true},
}

// LookupProfile fails with TranscodeFailed for unknown names.
func LookupProfile(name string) (Profile, error) {
	p, ok := profiles[name]
	if !ok {
		return Profile{}, faults.Newf(faults.TranscodeFailed, "unknown profile %q", name)
	}
	return p, nil
}

// ProfileNames lists the supported profiles in a stable order.
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for n := range profiles {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := profiles[names[i]], profiles[names[j]]
		if a.AudioOnly != b.AudioOnly {
			return b.AudioOnly
		}
		return a.MaxHeight < b.MaxHeight
	})
	return names
}
