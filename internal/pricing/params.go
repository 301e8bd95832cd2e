package pricing

import (
	"strings"

	"github.com/angelmondragon/snapstudio-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/snapstudio-backend/pkg/errors"
)

const (
	DefaultGenerateVariations = 3
	MinVariations             = 1
	MaxVariations             = 4
	MaxScenes                 = 12
)

// Quality selects the scene generation tier.
const (
	QualityBasic        = "basic"
	QualityProfessional = "professional"
)

// Parameters is the request shape shared by every operation kind. Only the
// fields relevant to a kind are read.
type Parameters struct {
	ImagePath    string   `json:"image_path,omitempty"`
	ImageURL     string   `json:"image_url,omitempty"`
	MaskURL      string   `json:"mask_url,omitempty"`
	LogoPath     string   `json:"logo_path,omitempty"`
	ProductType  string   `json:"product_type,omitempty"`
	Scenes       []string `json:"scenes,omitempty"`
	Styles       []string `json:"styles,omitempty"`
	Moods        []string `json:"moods,omitempty"`
	CustomPrompt string   `json:"custom_prompt,omitempty"`
	Prompt       string   `json:"prompt,omitempty"`
	Quality      string   `json:"quality,omitempty"`
	Variations   *int     `json:"variations,omitempty"`
}

// FieldErrors maps a parameter name to what is wrong with it.
type FieldErrors map[string]string

func (p Parameters) HasCustomPrompt() bool {
	return strings.TrimSpace(p.CustomPrompt) != ""
}

// SceneList returns the non-blank scenes in request order.
func (p Parameters) SceneList() []string {
	out := make([]string, 0, len(p.Scenes))
	for _, s := range p.Scenes {
		if trimmed := strings.TrimSpace(s); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// VariationsFor applies the per-kind default.
func (p Parameters) VariationsFor(kind enums.OperationKind) int {
	if p.Variations != nil {
		return *p.Variations
	}
	if kind == enums.OperationGenerate {
		return DefaultGenerateVariations
	}
	return 1
}

// Validate rejects request shapes that cannot be priced or run.
func (p Parameters) Validate(kind enums.OperationKind) error {
	fields := FieldErrors{}
	if !kind.IsValid() {
		fields["kind"] = "unknown operation kind"
		return invalid(fields)
	}

	variations := p.VariationsFor(kind)
	switch kind {
	case enums.OperationGenerate:
		if strings.TrimSpace(p.ImagePath) == "" {
			fields["image_path"] = "required"
		}
		if strings.TrimSpace(p.ProductType) == "" {
			fields["product_type"] = "required"
		}
		scenes := p.SceneList()
		if !p.HasCustomPrompt() && len(scenes) == 0 {
			fields["scenes"] = "at least one scene or a custom_prompt is required"
		}
		if len(scenes) > MaxScenes {
			fields["scenes"] = "too many scenes"
		}
		if q := strings.TrimSpace(p.Quality); q != "" && q != QualityBasic && q != QualityProfessional {
			fields["quality"] = "must be basic or professional"
		}
		if variations < MinVariations || variations > MaxVariations {
			fields["variations"] = "must be between 1 and 4"
		}
	case enums.OperationEdit, enums.OperationVirtualModel:
		if strings.TrimSpace(p.ImageURL) == "" {
			fields["image_url"] = "required"
		}
		if strings.TrimSpace(p.Prompt) == "" {
			fields["prompt"] = "required"
		}
		if variations > MaxVariations || (kind == enums.OperationVirtualModel && variations < MinVariations) {
			fields["variations"] = "must be between 1 and 4"
		}
	case enums.OperationRetouch:
		if strings.TrimSpace(p.ImageURL) == "" {
			fields["image_url"] = "required"
		}
		if strings.TrimSpace(p.MaskURL) == "" {
			fields["mask_url"] = "required"
		}
		if strings.TrimSpace(p.Prompt) == "" {
			fields["prompt"] = "required"
		}
	}

	if len(fields) > 0 {
		return invalid(fields)
	}
	return nil
}

func invalid(fields FieldErrors) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "invalid operation parameters").WithDetails(fields)
}
