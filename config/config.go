// Package config holds the runtime configuration surface for the
// detection pipeline: per-detector enable flags, thresholds, the glare
// rescue mode, and the watermark secret.
package config

import "time"

// RescueMode selects the glare-rescue algorithm. CLAHE is the only mode
// today; the type exists so additional modes can be added without
// changing the Config shape.
type RescueMode string

// CLAHERescue is the only supported glare rescue mode.
const CLAHERescue RescueMode = "CLAHE"

// Config is a value type: snapshot-read by the pipeline once per frame,
// replaced wholesale under Store's writer lock. Fields mirror the
// configuration surface enumerated in SPEC_FULL.md section 6.
type Config struct {
	Debug bool `json:"debug"`

	// Enable flags.
	EnableBlur        bool `json:"blur"`
	EnableShake       bool `json:"shake"`
	EnableGlare       bool `json:"glare"`
	EnableLiveness    bool `json:"liveness"`
	EnableReposition  bool `json:"reposition"`
	EnableBlurFix     bool `json:"blur_fix"`
	EnableGlareRescue bool `json:"glare_rescue"`
	EnableAudioAlerts bool `json:"audio_alerts"`

	GlareRescueMode RescueMode `json:"glare_rescue_mode"`

	// Thresholds, defaults per SPEC_FULL.md section 6.
	BlurThreshold            float64       `json:"blur_threshold"`
	BlurFixStrength          float64       `json:"blur_fix_strength"`
	ShakeThreshold           float64       `json:"shake_threshold"`
	RepositionThreshold      float64       `json:"reposition_threshold"`
	FastRepositionThreshold  float64       `json:"fast_reposition_threshold"`
	DirectionConsistency     float64       `json:"direction_consistency"`
	LivenessThreshold        float64       `json:"liveness_threshold"`
	LivenessCheckInterval    time.Duration `json:"liveness_check_interval"`
	LivenessActivationTime   time.Duration `json:"liveness_activation_time"`
	BlackoutBrightnessThresh float64       `json:"blackout_brightness_threshold"`
	MajorTamperThreshold     float64       `json:"major_tamper_threshold"`

	LiveThreshold      float64 `json:"live_threshold"`
	ColorMatchDistance float64 `json:"color_match_distance"`

	// Aggregator sustain/grouping windows. CoolingWindow is the single 5s
	// grouping/cooling window named in SPEC_FULL.md sections 3 and 7: how
	// long an incident stays reopenable after its track clears before it
	// is closed for good. There is only one such window in the spec, so
	// it is not split into separate sustain/grouping fields.
	SustainWindow        time.Duration `json:"sustain_window"`
	FastRepositionArming time.Duration `json:"fast_reposition_arming"`
	CoolingWindow        time.Duration `json:"cooling_window"`
	MaxIncidentsInMemory int           `json:"max_incidents_in_memory"`

	// WatermarkSecret must be at least 16 bytes. In production it is
	// supplied from environment configuration; it never appears on the
	// wire and is excluded from JSON marshaling.
	WatermarkSecret string `json:"-"`
}

// DefaultWatermarkSecret is used only when no secret is supplied via
// environment configuration. It exists so the pipeline can run out of
// the box in development; operators must override it in production.
const DefaultWatermarkSecret = "sentinel-dev-watermark-key-0001"

// Default returns a Config populated with the thresholds named in
// SPEC_FULL.md section 6.
func Default() *Config {
	return &Config{
		Debug: false,

		EnableBlur:        true,
		EnableShake:       true,
		EnableGlare:       true,
		EnableLiveness:    true,
		EnableReposition:  true,
		EnableBlurFix:     true,
		EnableGlareRescue: true,
		EnableAudioAlerts: false,

		GlareRescueMode: CLAHERescue,

		BlurThreshold:           70.0,
		BlurFixStrength:         1.5,
		ShakeThreshold:          6.0,
		RepositionThreshold:     10.0,
		FastRepositionThreshold: 20.0,
		DirectionConsistency:    0.4,

		LivenessThreshold:        2.0,
		LivenessCheckInterval:    3 * time.Second,
		LivenessActivationTime:   10 * time.Second,
		BlackoutBrightnessThresh: 25.0,
		MajorTamperThreshold:     60.0,

		LiveThreshold:      0.70,
		ColorMatchDistance: 24.0,

		SustainWindow:        2 * time.Second,
		FastRepositionArming: 1 * time.Second,
		CoolingWindow:        5 * time.Second,
		MaxIncidentsInMemory: 5,

		WatermarkSecret: DefaultWatermarkSecret,
	}
}

// Validate clamps/normalizes values to safe ranges. It returns an error
// only for the one condition that must be treated as fatal at load time
// (SPEC_FULL.md section 7, exit code 2): a watermark secret too short to
// be a usable HMAC key. Every other field is repaired to its default
// rather than rejected, in keeping with the teacher repo's own
// Validate pattern.
func (c *Config) Validate() error {
	d := Default()
	if c.BlurThreshold <= 0 {
		c.BlurThreshold = d.BlurThreshold
	}
	if c.BlurFixStrength <= 0 {
		c.BlurFixStrength = d.BlurFixStrength
	}
	if c.ShakeThreshold <= 0 {
		c.ShakeThreshold = d.ShakeThreshold
	}
	if c.RepositionThreshold <= 0 {
		c.RepositionThreshold = d.RepositionThreshold
	}
	if c.FastRepositionThreshold <= 0 {
		c.FastRepositionThreshold = d.FastRepositionThreshold
	}
	if c.DirectionConsistency <= 0 {
		c.DirectionConsistency = d.DirectionConsistency
	}
	if c.LivenessThreshold <= 0 {
		c.LivenessThreshold = d.LivenessThreshold
	}
	if c.LivenessCheckInterval <= 0 {
		c.LivenessCheckInterval = d.LivenessCheckInterval
	}
	if c.LivenessActivationTime <= 0 {
		c.LivenessActivationTime = d.LivenessActivationTime
	}
	if c.BlackoutBrightnessThresh <= 0 {
		c.BlackoutBrightnessThresh = d.BlackoutBrightnessThresh
	}
	if c.MajorTamperThreshold <= 0 {
		c.MajorTamperThreshold = d.MajorTamperThreshold
	}
	if c.LiveThreshold <= 0 || c.LiveThreshold > 1 {
		c.LiveThreshold = d.LiveThreshold
	}
	if c.ColorMatchDistance <= 0 {
		c.ColorMatchDistance = d.ColorMatchDistance
	}
	if c.SustainWindow <= 0 {
		c.SustainWindow = d.SustainWindow
	}
	if c.FastRepositionArming <= 0 {
		c.FastRepositionArming = d.FastRepositionArming
	}
	if c.CoolingWindow <= 0 {
		c.CoolingWindow = d.CoolingWindow
	}
	if c.MaxIncidentsInMemory <= 0 {
		c.MaxIncidentsInMemory = d.MaxIncidentsInMemory
	}
	if c.GlareRescueMode == "" {
		c.GlareRescueMode = CLAHERescue
	}
	if len(c.WatermarkSecret) < 16 {
		return ErrSecretTooShort
	}
	return nil
}
