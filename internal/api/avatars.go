package api

import (
	"bytes"
	"io"
	"mime"
	"net/http"

	"github.com/farmstand/farmstand/internal/metrics"
	"github.com/farmstand/farmstand/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MaxAvatarSize bounds avatar uploads.
const MaxAvatarSize = 5 << 20

// avatarTypes are the accepted avatar formats. Only raster images: SVG can
// carry script and the avatars bucket is public.
var avatarTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// AvatarHandler stores and serves profile avatar images.
type AvatarHandler struct {
	store storage.AvatarStore
	log   zerolog.Logger
}

func NewAvatarHandler(store storage.AvatarStore, log zerolog.Logger) *AvatarHandler {
	return &AvatarHandler{
		store: store,
		log:   log.With().Str("handler", "avatars").Logger(),
	}
}

// Routes registers the avatar endpoints.
func (h *AvatarHandler) Routes(r chi.Router) {
	r.Put("/profiles/{userID}/avatar", h.Upload)
	r.Get("/profiles/{userID}/avatar", h.Serve)
}

type AvatarResponse struct {
	Key string `json:"key"`
	URL string `json:"url,omitempty"`
}

// avatarKey is the single object key for a user's avatar. One key per user
// means a new upload replaces the old image whatever its format.
func avatarKey(userID uuid.UUID) string {
	return userID.String() + "/avatar"
}

// Upload handles PUT /api/v1/profiles/{userID}/avatar. The body is the raw
// image; Content-Type must be JPEG, PNG, GIF or WebP and match the content.
func (h *AvatarHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "userID must be a UUID")
		return
	}

	contentType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || !avatarTypes[contentType] {
		WriteError(w, http.StatusUnsupportedMediaType, "avatar must be a JPEG, PNG, GIF or WebP image")
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, MaxAvatarSize+1))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if len(data) == 0 {
		WriteError(w, http.StatusBadRequest, "empty body")
		return
	}
	if len(data) > MaxAvatarSize {
		WriteError(w, http.StatusRequestEntityTooLarge, "avatar exceeds 5 MiB")
		return
	}
	if sniffed := http.DetectContentType(data); sniffed != contentType {
		WriteErrorDetail(w, http.StatusUnsupportedMediaType, "body does not match Content-Type", "detected "+sniffed)
		return
	}

	key := avatarKey(userID)
	if err := h.store.Save(r.Context(), key, data, contentType); err != nil {
		metrics.AvatarUploadsTotal.WithLabelValues(h.store.Type(), "error").Inc()
		h.log.Error().Err(err).Str("key", key).Msg("avatar save failed")
		WriteError(w, http.StatusInternalServerError, "failed to store avatar")
		return
	}
	metrics.AvatarUploadsTotal.WithLabelValues(h.store.Type(), "ok").Inc()

	url, err := h.store.URL(r.Context(), key)
	if err != nil {
		h.log.Warn().Err(err).Str("key", key).Msg("avatar url failed")
	}
	WriteJSON(w, http.StatusOK, AvatarResponse{Key: key, URL: url})
}

// Serve handles GET /api/v1/profiles/{userID}/avatar and streams the stored
// image.
func (h *AvatarHandler) Serve(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "userID must be a UUID")
		return
	}

	key := avatarKey(userID)
	if !h.store.Exists(r.Context(), key) {
		WriteError(w, http.StatusNotFound, "avatar not found")
		return
	}

	rc, err := h.store.Open(r.Context(), key)
	if err != nil {
		h.log.Error().Err(err).Str("key", key).Msg("avatar open failed")
		WriteError(w, http.StatusInternalServerError, "failed to read avatar")
		return
	}
	defer rc.Close()

	// Sniff the type from the first 512 bytes; uploads were checked the same way.
	head := make([]byte, 512)
	n, err := io.ReadFull(rc, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		h.log.Error().Err(err).Str("key", key).Msg("avatar read failed")
		WriteError(w, http.StatusInternalServerError, "failed to read avatar")
		return
	}
	head = head[:n]

	contentType := http.DetectContentType(head)
	if !avatarTypes[contentType] {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, io.MultiReader(bytes.NewReader(head), rc)); err != nil {
		h.log.Debug().Err(err).Str("key", key).Msg("avatar stream interrupted")
	}
}
