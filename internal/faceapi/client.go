package faceapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/kozaktomas/attendance-cam/internal/constants"
	"github.com/kozaktomas/attendance-cam/internal/facematch"
	"github.com/kozaktomas/attendance-cam/internal/imaging"
)

const defaultFaceAPIURL = "http://localhost:8000"

// Client computes face locations and vectors using the face server.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a new face server client
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultFaceAPIURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// FaceDetection represents a single detected face
type FaceDetection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// FaceResponse represents the response from the face embedding endpoint
type FaceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []FaceDetection `json:"faces"`
	Model      string          `json:"model"`
}

type detectResponse struct {
	Boxes [][]float64 `json:"boxes"`
}

type encodeResponse struct {
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
}

// postMultipartImage constructs a multipart form with the image data and extra
// fields and posts it to the given endpoint.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte, fields map[string]string) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", imaging.DetectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("failed to write field %s: %w", k, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// Detect returns the face boxes found in img.
func (c *Client) Detect(ctx context.Context, img image.Image) ([]image.Rectangle, error) {
	data, err := imaging.EncodeJPEG(img, constants.JPEGQuality)
	if err != nil {
		return nil, err
	}
	body, err := c.postMultipartImage(ctx, "/detect/face", data, nil)
	if err != nil {
		return nil, err
	}

	var resp detectResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	boxes := make([]image.Rectangle, 0, len(resp.Boxes))
	for _, b := range resp.Boxes {
		if r, ok := facematch.RectFromCorners(b); ok {
			boxes = append(boxes, r.Add(img.Bounds().Min))
		}
	}
	return boxes, nil
}

// Encode returns the feature vector for the face at box.
func (c *Client) Encode(ctx context.Context, img image.Image, box image.Rectangle) ([]float32, error) {
	data, err := imaging.EncodeJPEG(img, constants.JPEGQuality)
	if err != nil {
		return nil, err
	}
	local := box.Sub(img.Bounds().Min)
	fields := map[string]string{
		"bbox": fmt.Sprintf("%d,%d,%d,%d", local.Min.X, local.Min.Y, local.Max.X, local.Max.Y),
	}
	body, err := c.postMultipartImage(ctx, "/encode/face", data, fields)
	if err != nil {
		return nil, err
	}

	var resp encodeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(resp.Embedding) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return resp.Embedding, nil
}

// Analyze detects and encodes all faces with a single request.
func (c *Client) Analyze(ctx context.Context, img image.Image) ([]Face, error) {
	data, err := imaging.EncodeJPEG(img, constants.JPEGQuality)
	if err != nil {
		return nil, err
	}
	resp, err := c.ComputeFaceEmbeddings(ctx, data)
	if err != nil {
		return nil, err
	}

	faces := make([]Face, 0, len(resp.Faces))
	for _, f := range resp.Faces {
		box, ok := facematch.RectFromCorners(f.BBox)
		if !ok {
			continue
		}
		if len(f.Embedding) == 0 {
			return nil, ErrEmptyEmbedding
		}
		faces = append(faces, Face{Box: box.Add(img.Bounds().Min), Vector: f.Embedding})
	}
	return faces, nil
}

// ComputeFaceEmbeddings detects faces and computes their embeddings
func (c *Client) ComputeFaceEmbeddings(ctx context.Context, imageData []byte) (*FaceResponse, error) {
	body, err := c.postMultipartImage(ctx, "/embed/face", imageData, nil)
	if err != nil {
		return nil, err
	}

	var faceResp FaceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &faceResp, nil
}
