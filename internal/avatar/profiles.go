package avatar

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yoockh/veriview/internal/models"
)

type Role string

const (
	RoleInterviewer Role = "interviewer"
	RolePro         Role = "debater-pro"
	RoleCon         Role = "debater-con"
)

const presenterBase = "https://create-images-results.d-id.com/DefaultPresenters/"

var presenters = map[string]string{
	"interviewer_male":   presenterBase + "Noam_front_thumbnail.jpg",
	"interviewer_female": presenterBase + "Maya_front_thumbnail.jpg",
	"debater_male":       presenterBase + "David_front_thumbnail.jpg",
	"debater_female":     presenterBase + "Sarah_front_thumbnail.jpg",
}

// Profile is the (face, voice, language) bundle a render is made with.
type Profile struct {
	Role      Role   `yaml:"role" json:"role"`
	Gender    string `yaml:"gender" json:"gender"`
	SourceURL string `yaml:"source_url" json:"source_url"`
	VoiceID   string `yaml:"voice_id" json:"voice_id"`
	Language  string `yaml:"language" json:"language"`
}

// Key identifies the profile inside render cache keys.
func (p Profile) Key() string {
	return strings.Join([]string{string(p.Role), p.VoiceID, p.SourceURL}, "|")
}

type Profiles map[Role]Profile

type ProfileOptions struct {
	InterviewerVoice string
	ProVoice         string
	ConVoice         string
	ProGender        string // male|female; CON takes the other
	Language         string
}

// DefaultProfiles builds the three speaker profiles from voice settings.
func DefaultProfiles(o ProfileOptions) Profiles {
	proGender := strings.ToLower(o.ProGender)
	if proGender != "female" {
		proGender = "male"
	}
	conGender := "female"
	if proGender == "female" {
		conGender = "male"
	}
	lang := o.Language
	if lang == "" {
		lang = "ko-KR"
	}
	return Profiles{
		RoleInterviewer: {Role: RoleInterviewer, Gender: "male", SourceURL: presenters["interviewer_male"], VoiceID: o.InterviewerVoice, Language: lang},
		RolePro:         {Role: RolePro, Gender: proGender, SourceURL: presenters["debater_"+proGender], VoiceID: o.ProVoice, Language: lang},
		RoleCon:         {Role: RoleCon, Gender: conGender, SourceURL: presenters["debater_"+conGender], VoiceID: o.ConVoice, Language: lang},
	}
}

type profileFile struct {
	Profiles []Profile `yaml:"profiles"`
}

// LoadProfiles overlays entries from a YAML file onto base. Empty fields in
// the file keep the base value.
func LoadProfiles(path string, base Profiles) (Profiles, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}
	var f profileFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse profiles: %w", err)
	}
	out := make(Profiles, len(base))
	for k, v := range base {
		out[k] = v
	}
	for _, p := range f.Profiles {
		cur, ok := out[p.Role]
		if !ok {
			return nil, fmt.Errorf("unknown profile role %q", p.Role)
		}
		if p.Gender != "" {
			cur.Gender = p.Gender
		}
		if p.SourceURL != "" {
			cur.SourceURL = p.SourceURL
		}
		if p.VoiceID != "" {
			cur.VoiceID = p.VoiceID
		}
		if p.Language != "" {
			cur.Language = p.Language
		}
		out[p.Role] = cur
	}
	return out, nil
}

// RoleForStance maps a debate stance to the speaker that argues it.
func RoleForStance(s models.Stance) Role {
	if s == models.StanceCon {
		return RoleCon
	}
	return RolePro
}

// Kind is the cache namespace a role renders into.
func (r Role) Kind() models.SessionKind {
	if r == RoleInterviewer {
		return models.KindInterview
	}
	return models.KindDebate
}
