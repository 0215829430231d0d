// internal/common/directory/client.go
package directory

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"

	"matching-workers/internal/common/config"
	"matching-workers/internal/common/errors"
	commonhttp "matching-workers/internal/common/http"
	"matching-workers/internal/models"
)

// Client fetches scoring profiles from the user-directory service.
// Embeddings arrive base64-encoded and are decoded here, at the
// boundary, so the rest of the codebase only ever sees []float32.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *commonhttp.Client
}

// profilePayload is the directory's wire format for one user profile.
type profilePayload struct {
	UserID          string   `json:"userId"`
	Interests       []string `json:"interests"`
	Role            string   `json:"role"`
	Industry        string   `json:"industry"`
	Org             string   `json:"org"`
	Languages       []string `json:"languages"`
	Timezone        string   `json:"timezone"`
	TimezoneOffset  int      `json:"timezoneOffset"`
	ExperienceLevel int      `json:"experienceLevel"`
	Segment         string   `json:"segment"`
	Email           string   `json:"email"`
	Embedding       *struct {
		Data  string `json:"data"`
		Model string `json:"model"`
	} `json:"embedding,omitempty"`
}

type batchResponse struct {
	Profiles []profilePayload `json:"profiles"`
}

func NewClient(cfg config.DirectoryConfig) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: commonhttp.NewClient(config.GetDuration(cfg.Timeout)),
	}
}

// GetProfile fetches a single user's scoring profile.
func (c *Client) GetProfile(ctx context.Context, userID string) (*models.ScoringProfile, error) {
	url := fmt.Sprintf("%s/v1/users/%s/profile", c.baseURL, userID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded || isTimeout(err) {
			return nil, errors.NewDirectoryTimeoutError(userID)
		}
		return nil, errors.NewDirectoryUnavailableError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errors.NewEntryNotFoundError(userID)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, errors.NewDirectoryUnavailableError(
			fmt.Errorf("directory returned status %d: %s", resp.StatusCode, string(body)))
	}

	var payload profilePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errors.NewDirectoryUnavailableError(fmt.Errorf("failed to decode profile: %w", err))
	}

	return payload.toProfile()
}

// GetProfiles fetches scoring profiles for a set of users in one call.
// Users the directory does not know are silently absent from the result.
func (c *Client) GetProfiles(ctx context.Context, userIDs []string) (map[string]*models.ScoringProfile, error) {
	url := fmt.Sprintf("%s/v1/users/profiles", c.baseURL)

	reqBody, err := json.Marshal(map[string][]string{"userIds": userIDs})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal batch request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(reqBody)))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded || isTimeout(err) {
			return nil, errors.NewDirectoryTimeoutError(fmt.Sprintf("batch of %d", len(userIDs)))
		}
		return nil, errors.NewDirectoryUnavailableError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, errors.NewDirectoryUnavailableError(
			fmt.Errorf("directory returned status %d: %s", resp.StatusCode, string(body)))
	}

	var batch batchResponse
	if err := json.NewDecoder(resp.Body).Decode(&batch); err != nil {
		return nil, errors.NewDirectoryUnavailableError(fmt.Errorf("failed to decode batch: %w", err))
	}

	profiles := make(map[string]*models.ScoringProfile, len(batch.Profiles))
	for i := range batch.Profiles {
		profile, err := batch.Profiles[i].toProfile()
		if err != nil {
			return nil, err
		}
		profiles[profile.UserID] = profile
	}

	return profiles, nil
}

func (p *profilePayload) toProfile() (*models.ScoringProfile, error) {
	profile := &models.ScoringProfile{
		UserID:          p.UserID,
		Interests:       p.Interests,
		Role:            p.Role,
		Industry:        p.Industry,
		Org:             p.Org,
		Languages:       p.Languages,
		Timezone:        p.Timezone,
		TimezoneOffset:  p.TimezoneOffset,
		ExperienceLevel: p.ExperienceLevel,
		Segment:         p.Segment,
		Email:           p.Email,
	}

	if p.Embedding != nil && p.Embedding.Data != "" {
		vector, err := DecodeEmbedding(p.Embedding.Data)
		if err != nil {
			return nil, fmt.Errorf("user %s: %w", p.UserID, err)
		}
		profile.Embedding = &models.Embedding{
			Vector: vector,
			Model:  p.Embedding.Model,
		}
	}

	return profile, nil
}

// DecodeEmbedding decodes a base64 string of little-endian float32
// values into a vector.
func DecodeEmbedding(data string) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("invalid embedding encoding: %w", err)
	}
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("embedding byte length %d is not a multiple of 4", len(raw))
	}

	vector := make([]float32, len(raw)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(raw[i*4:])
		vector[i] = math.Float32frombits(bits)
	}

	return vector, nil
}

func isTimeout(err error) bool {
	type timeout interface{ Timeout() bool }
	for err != nil {
		if t, ok := err.(timeout); ok && t.Timeout() {
			return true
		}
		type unwrapper interface{ Unwrap() error }
		u, ok := err.(unwrapper)
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
