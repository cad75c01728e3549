package engine

import (
	"encoding/json"
	"strconv"
	"strings"
)

// durationFromProbe extracts a duration in seconds from ffprobe JSON.
// The video stream duration is preferred; the container duration and a
// frame-count estimate are fallbacks, since not every container records
// stream durations.
func durationFromProbe(probe string) float64 {
	var data map[string]interface{}
	if err := json.Unmarshal([]byte(probe), &data); err != nil {
		return 0
	}

	var videoStream map[string]interface{}
	if streams, ok := data["streams"].([]interface{}); ok {
		for _, stream := range streams {
			s, ok := stream.(map[string]interface{})
			if !ok {
				continue
			}
			if codecType, _ := s["codec_type"].(string); codecType == "video" {
				videoStream = s
				break
			}
		}
	}

	if videoStream != nil {
		if d := parseFloatField(videoStream["duration"]); d > 0 {
			return d
		}
	}

	if format, ok := data["format"].(map[string]interface{}); ok {
		if d := parseFloatField(format["duration"]); d > 0 {
			return d
		}
	}

	if videoStream != nil {
		frames := parseFloatField(videoStream["nb_frames"])
		if frames > 0 {
			if rate, ok := videoStream["r_frame_rate"].(string); ok {
				if fps := parseFrameRate(rate); fps > 0 {
					return frames / fps
				}
			}
		}
	}

	return 0
}

func parseFloatField(v interface{}) float64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return d
}

func parseFrameRate(rate string) float64 {
	nums := strings.Split(rate, "/")
	if len(nums) != 2 {
		return 0
	}
	num, err1 := strconv.ParseFloat(nums[0], 64)
	den, err2 := strconv.ParseFloat(nums[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0
	}
	return num / den
}
