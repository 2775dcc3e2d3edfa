package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Challenge scoring types.
const (
	ChallengeTypeStatic  = "static"
	ChallengeTypeDynamic = "dynamic"
)

// Decay functions applied to dynamic challenges.
const (
	DecayLinear      = "linear"
	DecayLogarithmic = "logarithmic"
)

// Challenge is a task published to competitors.
type Challenge struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Name        string         `gorm:"size:255;not null" json:"name"`
	Category    string         `gorm:"size:64;not null" json:"category"`
	Author      string         `gorm:"size:255" json:"author"`
	Description string         `gorm:"type:text" json:"description"`
	Flag        string         `gorm:"size:255;not null" json:"-"`
	Type        string         `gorm:"size:16;not null;default:static" json:"type"`
	Value       int            `gorm:"not null" json:"value"`
	DynamicFlag bool           `gorm:"not null;default:false" json:"dynamic_flag"`
	Hidden      bool           `gorm:"not null;default:false" json:"hidden"`
	Hints       datatypes.JSON `gorm:"type:json" json:"-"`
	Files       datatypes.JSON `gorm:"type:json" json:"-"`
	Deploy      datatypes.JSON `gorm:"type:json" json:"-"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// DynamicChallenge stores decay parameters keyed 1:1 by challenge id.
type DynamicChallenge struct {
	ID       uint   `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Initial  int    `gorm:"not null" json:"initial"`
	Minimum  int    `gorm:"not null" json:"minimum"`
	Decay    int    `gorm:"not null" json:"decay"`
	Function string `gorm:"size:16;not null" json:"function"`
}

// ChallengeFile describes a downloadable attachment.
type ChallengeFile struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Size int64  `json:"size,omitempty"`
	Type string `json:"type,omitempty"`
}

// DeployTemplate declares the containers started for every instance of a challenge.
type DeployTemplate struct {
	ImagePullSecrets []string          `json:"imagePullSecrets,omitempty"`
	Containers       []DeployContainer `json:"containers" validate:"dive"`
}

// DeployContainer is a single container of a deployment template. An empty name means unnamed.
type DeployContainer struct {
	Image                string           `json:"image" validate:"required"`
	Name                 string           `json:"name,omitempty"`
	AllowExternalNetwork bool             `json:"allowExternalNetwork,omitempty"`
	Envs                 []EnvVar         `json:"envs,omitempty" validate:"dive"`
	Ports                []DeployPort     `json:"ports,omitempty" validate:"dive"`
	Resources            *ResourceProfile `json:"resources,omitempty"`
}

// EnvVar is a container environment variable.
type EnvVar struct {
	Name  string `json:"name" validate:"required"`
	Value string `json:"value"`
}

// DeployPort exposes a container port. Domain is an optional routing fragment.
type DeployPort struct {
	Number   int    `json:"number" validate:"required,min=1,max=65535"`
	Protocol string `json:"protocol" validate:"required,oneof=http tcp"`
	Domain   string `json:"domain,omitempty"`
}

// ResourceProfile carries kubernetes style requests and limits.
type ResourceProfile struct {
	Requests *ResourceQuantity `json:"requests,omitempty"`
	Limits   *ResourceQuantity `json:"limits,omitempty"`
}

// ResourceQuantity holds cpu and memory quantities such as "100m" and "128Mi".
type ResourceQuantity struct {
	CPU    string `json:"cpu,omitempty"`
	Memory string `json:"memory,omitempty"`
}

// SetDeployTemplate serializes the template into the deploy column.
func (c *Challenge) SetDeployTemplate(template DeployTemplate) error {
	data, err := json.Marshal(template)
	if err != nil {
		return err
	}
	c.Deploy = datatypes.JSON(data)
	return nil
}

// DeployTemplate decodes the stored template. Challenges without one return an empty template.
func (c Challenge) DeployTemplate() (DeployTemplate, error) {
	var template DeployTemplate
	if len(c.Deploy) == 0 || string(c.Deploy) == "null" {
		return template, nil
	}
	if err := json.Unmarshal(c.Deploy, &template); err != nil {
		return DeployTemplate{}, err
	}
	return template, nil
}

// Deployable reports whether instances can be started for the challenge.
func (c Challenge) Deployable() bool {
	template, err := c.DeployTemplate()
	return err == nil && len(template.Containers) > 0
}

// SetHints serializes the hint list.
func (c *Challenge) SetHints(hints []string) {
	if hints == nil {
		hints = []string{}
	}
	data, err := json.Marshal(hints)
	if err != nil {
		c.Hints = datatypes.JSON([]byte("[]"))
		return
	}
	c.Hints = datatypes.JSON(data)
}

// HintList deserializes the stored hints.
func (c Challenge) HintList() []string {
	hints := []string{}
	if len(c.Hints) == 0 {
		return hints
	}
	if err := json.Unmarshal(c.Hints, &hints); err != nil {
		return []string{}
	}
	return hints
}

// SetFiles serializes the attachment list.
func (c *Challenge) SetFiles(files []ChallengeFile) {
	if files == nil {
		files = []ChallengeFile{}
	}
	data, err := json.Marshal(files)
	if err != nil {
		c.Files = datatypes.JSON([]byte("[]"))
		return
	}
	c.Files = datatypes.JSON(data)
}

// FileList deserializes the stored attachments.
func (c Challenge) FileList() []ChallengeFile {
	files := []ChallengeFile{}
	if len(c.Files) == 0 {
		return files
	}
	if err := json.Unmarshal(c.Files, &files); err != nil {
		return []ChallengeFile{}
	}
	return files
}
