package eyepose

import (
	"encoding/json"
	"fmt"
	"os"
)

type CameraCfg struct {
	Fx Real `json:"fx"`
	Fy Real `json:"fy"`
	Cx Real `json:"cx"`
	Cy Real `json:"cy"`
	K1 Real `json:"k1,omitempty"`
	K2 Real `json:"k2,omitempty"`

	// Placement relative to the eye.
	DepthMm       Real `json:"depthMm"`
	HorizontalDeg Real `json:"horizontalDeg,omitempty"`
	VerticalDeg   Real `json:"verticalDeg,omitempty"`
	TorsionDeg    Real `json:"torsionDeg,omitempty"`
}

// SceneGeometryCfg is the on-disk form of a calibrated scene geometry,
// written by the calibrate command and read back by fit and project.
type SceneGeometryCfg struct {
	Camera   CameraCfg `json:"camera"`
	Biometry Biometry  `json:"biometry"`

	PrimaryAzimuthDeg   Real `json:"primaryAzimuthDeg,omitempty"`
	PrimaryElevationDeg Real `json:"primaryElevationDeg,omitempty"`
}

func (cc CameraCfg) Build() (Camera, error) {
	if cc.Fx <= 0 || cc.Fy <= 0 {
		return Camera{}, fmt.Errorf("camera focal lengths must be positive (fx=%g, fy=%g)", cc.Fx, cc.Fy)
	}
	if cc.DepthMm <= 0 {
		return Camera{}, fmt.Errorf("camera depth must be positive, got %gmm", cc.DepthMm)
	}
	cam := DefaultCamera(cc.Fx, cc.Fy, cc.Cx, cc.Cy, cc.DepthMm)
	cam.Distortion = Distortion{K1: cc.K1, K2: cc.K2}
	// World axes here are X horizontal, Y vertical, Z depth: a horizontal
	// offset is a yaw about Y, a vertical offset a pitch about X, and
	// torsion a roll about the optical axis Z.
	cam.Extrinsics.Rotation = rotHorizontal(degToRad(cc.HorizontalDeg)).
		Mul(rotDepth(degToRad(cc.VerticalDeg))).
		Mul(rotVertical(degToRad(cc.TorsionDeg))).
		Mul(cam.Extrinsics.Rotation)
	return cam, nil
}

func (sc SceneGeometryCfg) Build() (*SceneGeometry, error) {
	cam, err := sc.Camera.Build()
	if err != nil {
		return nil, err
	}
	eye, err := NewEyeModel(sc.Biometry)
	if err != nil {
		return nil, err
	}
	return &SceneGeometry{
		Camera:              cam,
		Eye:                 eye,
		PrimaryAzimuthDeg:   sc.PrimaryAzimuthDeg,
		PrimaryElevationDeg: sc.PrimaryElevationDeg,
	}, nil
}

// LoadSceneGeometry reads and builds a scene geometry from a JSON file.
func LoadSceneGeometry(path string) (*SceneGeometry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg SceneGeometryCfg
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return cfg.Build()
}

// SaveSceneGeometryCfg writes a geometry config as indented JSON.
func SaveSceneGeometryCfg(path string, cfg SceneGeometryCfg) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// ScenesCfg is the calibration input: observed frames grouped by scene.
type ScenesCfg struct {
	Scenes []Scene `json:"scenes"`
}

// LoadScenes reads calibration scenes from a JSON file. Frames with fewer
// than MinPerimeterPoints observed points are rejected up front rather
// than silently skipped mid-search.
func LoadScenes(path string) ([]Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg ScenesCfg
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Scenes) == 0 {
		return nil, fmt.Errorf("config has no scenes")
	}
	for si, sc := range cfg.Scenes {
		if len(sc.Frames) == 0 {
			return nil, fmt.Errorf("scene %d has no frames", si)
		}
		for fi, f := range sc.Frames {
			if len(f.Observed) < MinPerimeterPoints {
				return nil, fmt.Errorf("scene %d frame %d has %d observed points, need at least %d",
					si, fi, len(f.Observed), MinPerimeterPoints)
			}
		}
	}
	return cfg.Scenes, nil
}
