package httpapi

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ironsheep/coloring-care/internal/imaging"
	"github.com/ironsheep/coloring-care/internal/metrics"
	"github.com/ironsheep/coloring-care/internal/report"
	"github.com/ironsheep/coloring-care/internal/store"
)

func (a *API) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"version":  a.version,
		"storage":  a.store != nil,
		"reporter": a.reporter.Configured(),
	})
}

// === Templates ===

// handleProcessTemplate turns a photo into a coloring template. The photo is
// either fetched from {"imageUrl": ...} or uploaded as multipart "file".
func (a *API) handleProcessTemplate(c *gin.Context) {
	cfg := a.config()
	ctx := c.Request.Context()

	var data []byte
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		upload, err := a.readUpload(c, cfg.HTTP.MaxUploadBytes)
		if err != nil {
			abortWithError(c, err)
			return
		}
		data = upload.data
	} else {
		var body struct {
			ImageURL string `json:"imageUrl"`
		}
		if err := c.ShouldBindJSON(&body); err != nil || body.ImageURL == "" {
			abortWithError(c, badRequest("Image URL is required"))
			return
		}
		fetchCtx, cancel := context.WithTimeout(ctx, cfg.Outline.FetchTimeout)
		defer cancel()
		fetched, err := imaging.Fetch(fetchCtx, a.client, body.ImageURL, cfg.Outline.MaxFetchBytes)
		if err != nil {
			if errors.Is(err, imaging.ErrImageTooLarge) {
				abortWithError(c, err)
				return
			}
			abortWithError(c, badRequest(fmt.Sprintf("Failed to fetch image from URL: %v", err)))
			return
		}
		data = fetched
	}

	res, err := a.cache.Extract(data, imaging.OutlineOptions{
		MaxDimension:  cfg.Outline.MaxDimension,
		LowThreshold:  cfg.Outline.LowThreshold,
		HighThreshold: cfg.Outline.HighThreshold,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	resp := gin.H{
		"success":         true,
		"dataUrl":         "data:image/png;base64," + base64.StdEncoding.EncodeToString(res.PNG),
		"width":           res.Width,
		"height":          res.Height,
		"sourceWidth":     res.SourceWidth,
		"sourceHeight":    res.SourceHeight,
		"scaled":          res.Scaled,
		"stats":           res.Stats,
		"storageUrl":      nil,
		"inputStorageUrl": nil,
	}

	// Snapshots are for debugging template quality and never fail the request.
	if cfg.Storage.SnapshotTemplates && a.store != nil {
		if input, err := imaging.ToPNG(data); err != nil {
			a.log.Warn("Could not convert outline input for snapshot", zap.Error(err))
		} else if snap, err := a.store.SnapshotOutline(ctx, input, res.PNG); err != nil {
			a.log.Warn("Could not store outline snapshot", zap.Error(err))
		} else {
			resp["storageUrl"] = snap.OutputURL
			resp["inputStorageUrl"] = snap.InputURL
		}
	}

	c.JSON(http.StatusOK, resp)
}

type upload struct {
	name        string
	contentType string
	data        []byte
}

// readUpload reads the multipart "file" field, refusing files over limit.
func (a *API) readUpload(c *gin.Context, limit int64) (*upload, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return nil, badRequest("No file provided")
	}
	if fh.Size > limit {
		return nil, badRequest(fmt.Sprintf("File size too large. Maximum size is %d bytes.", limit))
	}

	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, badRequest(fmt.Sprintf("File size too large. Maximum size is %d bytes.", limit))
	}
	return &upload{name: fh.Filename, contentType: fh.Header.Get("Content-Type"), data: data}, nil
}

var allowedTemplateTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/jpg":  true,
}

// handleUploadTemplate stores an original PNG or JPEG for later use as a
// template.
func (a *API) handleUploadTemplate(c *gin.Context) {
	if a.store == nil {
		abortWithError(c, errNoStore)
		return
	}
	up, err := a.readUpload(c, a.config().HTTP.MaxUploadBytes)
	if err != nil {
		abortWithError(c, err)
		return
	}

	ext := strings.ToLower(filepath.Ext(up.name))
	if !allowedTemplateTypes[up.contentType] || (ext != ".png" && ext != ".jpg" && ext != ".jpeg") {
		abortWithError(c, badRequest("Invalid file format. Please upload PNG, JPG, or JPEG files only."))
		return
	}

	tpl, err := a.store.SaveTemplate(c.Request.Context(), up.data, ext)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"fileName": tpl.FileName,
		"url":      tpl.URL,
	})
}

// === Gallery ===

func (a *API) handleListGallery(c *gin.Context) {
	if a.store == nil {
		abortWithError(c, errNoStore)
		return
	}
	images, err := a.store.ListGalleryImages(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"images": images})
}

// decodeDataURL returns the bytes of a "data:<type>;base64,<data>" URL. A
// bare base64 string is accepted too.
func decodeDataURL(s string) ([]byte, error) {
	payload := s
	if strings.HasPrefix(s, "data:") {
		i := strings.IndexByte(s, ',')
		if i < 0 || i == len(s)-1 {
			return nil, badRequest("Invalid image data URL format")
		}
		payload = s[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, badRequest("Invalid image data URL format")
	}
	return data, nil
}

func (a *API) handleSaveGallery(c *gin.Context) {
	if a.store == nil {
		abortWithError(c, errNoStore)
		return
	}
	var body struct {
		ImageDataURL string  `json:"imageDataUrl"`
		UserID       *string `json:"userId"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.ImageDataURL == "" {
		abortWithError(c, badRequest("Image data URL is required"))
		return
	}

	data, err := decodeDataURL(body.ImageDataURL)
	if err != nil {
		abortWithError(c, err)
		return
	}
	pngData, err := imaging.ToPNG(data)
	if err != nil {
		abortWithError(c, err)
		return
	}

	img, err := a.store.SaveGalleryImage(c.Request.Context(), pngData, body.UserID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "image": img})
}

func (a *API) handleDeleteGallery(c *gin.Context) {
	if a.store == nil {
		abortWithError(c, errNoStore)
		return
	}
	if err := a.store.DeleteGalleryImage(c.Request.Context(), c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// handleObject serves a stored object under the public base URL.
func (a *API) handleObject(c *gin.Context) {
	if a.store == nil {
		abortWithError(c, errNoStore)
		return
	}
	key := strings.TrimPrefix(c.Param("key"), "/")
	if key == "" || strings.Contains(key, "..") {
		abortWithError(c, store.ErrNotFound)
		return
	}
	data, contentType, err := a.store.ReadObject(c.Request.Context(), key)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Data(http.StatusOK, contentType, data)
}

// === Sessions ===

type saveSessionBody struct {
	ImageID          string                    `json:"imageId"`
	CompletionTime   *float64                  `json:"completionTime"`
	NeglectRatio     *float64                  `json:"neglectRatio"`
	QuadrantActivity *metrics.QuadrantActivity `json:"quadrantActivity"`
	TremorIndex      *float64                  `json:"tremorIndex"`
	NudgeCount       int                       `json:"nudgeCount"`
	AIInsight        string                    `json:"aiInsight"`
	UserID           *string                   `json:"userId"`
}

// record converts the body into a row. A zero completion time is stored as
// unknown.
func (b saveSessionBody) record() *store.SessionRecord {
	rec := &store.SessionRecord{
		ImageID:      b.ImageID,
		NeglectRatio: b.NeglectRatio,
		TremorIndex:  b.TremorIndex,
		QuadrantData: b.QuadrantActivity,
		NudgeCount:   b.NudgeCount,
		UserID:       b.UserID,
	}
	if b.CompletionTime != nil && *b.CompletionTime != 0 {
		seconds := int(math.Round(*b.CompletionTime))
		rec.CompletionTime = &seconds
	}
	if b.AIInsight != "" {
		insight := b.AIInsight
		rec.AIInsight = &insight
	}
	return rec
}

func (a *API) handleSaveSession(c *gin.Context) {
	if a.store == nil {
		abortWithError(c, errNoStore)
		return
	}
	var body saveSessionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		abortWithError(c, badRequest("Invalid session data"))
		return
	}

	rec := body.record()
	if err := a.store.RecordSession(c.Request.Context(), rec); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "session": rec})
}

func (a *API) handleSessionStats(c *gin.Context) {
	if a.store == nil {
		abortWithError(c, errNoStore)
		return
	}
	overview, err := a.store.Overview(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, overview)
}

// === Reports ===

type quadrantBody struct {
	TopLeft     *float64 `json:"topLeft"`
	TopRight    *float64 `json:"topRight"`
	BottomLeft  *float64 `json:"bottomLeft"`
	BottomRight *float64 `json:"bottomRight"`
}

func (q *quadrantBody) activity() (*metrics.QuadrantActivity, error) {
	if q == nil {
		return nil, nil
	}
	if q.TopLeft == nil || q.TopRight == nil || q.BottomLeft == nil || q.BottomRight == nil {
		return nil, badRequest("Invalid quadrant activity data provided")
	}
	return &metrics.QuadrantActivity{
		TopLeft:     *q.TopLeft,
		TopRight:    *q.TopRight,
		BottomLeft:  *q.BottomLeft,
		BottomRight: *q.BottomRight,
	}, nil
}

func (a *API) handleAnalyze(c *gin.Context) {
	var body struct {
		NeglectRatio     *float64      `json:"neglectRatio"`
		QuadrantActivity *quadrantBody `json:"quadrantActivity"`
		TremorScore      *float64      `json:"tremorScore"`
		NudgeCount       *int          `json:"nudgeCount"`
		Context          string        `json:"context"`
	}
	if err := c.ShouldBindJSON(&body); err != nil ||
		body.NeglectRatio == nil || body.TremorScore == nil || body.NudgeCount == nil {
		abortWithError(c, badRequest("Invalid metrics provided"))
		return
	}
	quadrants, err := body.QuadrantActivity.activity()
	if err != nil {
		abortWithError(c, err)
		return
	}

	analysis, err := a.reporter.Analyze(c.Request.Context(), report.AnalysisInput{
		NeglectRatio:     *body.NeglectRatio,
		QuadrantActivity: quadrants,
		TremorScore:      *body.TremorScore,
		NudgeCount:       *body.NudgeCount,
		Context:          body.Context,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "analysis": analysis})
}

func (a *API) handleEncouragement(c *gin.Context) {
	msg, err := a.reporter.Encourage(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": msg})
}
