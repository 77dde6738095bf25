package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strings"

	"smartrag.com/shop-assistant/internal/auth"
	"smartrag.com/shop-assistant/internal/core"
	"smartrag.com/shop-assistant/internal/store"
)

const (
	maxUploadMemory = 32 << 20
	maxImageBytes   = 10 << 20
)

type contextKey string

const usernameKey contextKey = "username"

// ChatResponder answers customer messages.
type ChatResponder interface {
	HandleMessage(ctx context.Context, req core.ChatRequest) (*core.ChatResponse, error)
}

// CatalogStore is the persistence the admin surface needs.
type CatalogStore interface {
	GetUserByUsername(username string) (*store.User, error)
	CreateUser(username, passwordHash string) (*store.User, error)
	CreateProduct(p *store.Product) error
	GetProduct(id int64) (*store.Product, error)
	ListProducts(filter store.ProductFilter) ([]store.Product, error)
	UpdateProduct(p *store.Product) error
	DeleteProduct(id int64) error
}

// IndexAdmin exposes the candidate indexes to operators.
type IndexAdmin interface {
	Reload()
	Status() map[core.Modality]core.IndexStatus
}

type APIHandler struct {
	chat    ChatResponder
	catalog CatalogStore
	indexes IndexAdmin
}

func NewAPIHandler(chat ChatResponder, catalog CatalogStore, indexes IndexAdmin) *APIHandler {
	return &APIHandler{chat: chat, catalog: catalog, indexes: indexes}
}

func usernameFromContext(ctx context.Context) string {
	name, _ := ctx.Value(usernameKey).(string)
	return name
}

func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		username, err := auth.ValidateJWT(tokenString)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		user, err := h.catalog.GetUserByUsername(username)
		if err != nil {
			log.Printf("Error in JWTAuthMiddleware for user %s: %v", username, err)
			http.Error(w, "Failed to process user identity", http.StatusInternalServerError)
			return
		}
		if user == nil {
			http.Error(w, "User not found", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), usernameKey, user.Username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func decodeCredentials(w http.ResponseWriter, r *http.Request) (*CredentialsRequest, bool) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return nil, false
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		http.Error(w, "Username and password are required", http.StatusBadRequest)
		return nil, false
	}
	return &req, true
}

// SignupHandler lets an authenticated admin add another admin.
func (h *APIHandler) SignupHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCredentials(w, r)
	if !ok {
		return
	}

	existing, err := h.catalog.GetUserByUsername(req.Username)
	if err != nil {
		log.Printf("Error looking up user %s: %v", req.Username, err)
		http.Error(w, "Failed to create user", http.StatusInternalServerError)
		return
	}
	if existing != nil {
		http.Error(w, "Username already taken", http.StatusConflict)
		return
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		log.Printf("Error hashing password for user %s: %v", req.Username, err)
		http.Error(w, "Failed to process password", http.StatusInternalServerError)
		return
	}

	user, err := h.catalog.CreateUser(req.Username, hashedPassword)
	if err != nil {
		log.Printf("Error creating user %s: %v", req.Username, err)
		http.Error(w, "Failed to create user", http.StatusInternalServerError)
		return
	}
	log.Printf("Admin %s created by %s", user.Username, usernameFromContext(r.Context()))

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(user)
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCredentials(w, r)
	if !ok {
		return
	}

	user, err := h.catalog.GetUserByUsername(req.Username)
	if err != nil {
		log.Printf("Error getting user %s: %v", req.Username, err)
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}
	if user == nil || !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := auth.GenerateJWT(user.Username)
	if err != nil {
		log.Printf("Error generating JWT for user %s: %v", user.Username, err)
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"token": token})
}

type ChatRequestBody struct {
	Text      string `json:"text"`
	SessionID string `json:"session_id"`
}

// ChatHandler accepts multipart form data (text, session_id and image
// files under "images" or "images[]"), a urlencoded form, or a JSON body.
func (h *APIHandler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	var req core.ChatRequest

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
			http.Error(w, "Invalid multipart body: "+err.Error(), http.StatusBadRequest)
			return
		}
		req.Text = r.FormValue("text")
		req.SessionID = r.FormValue("session_id")

		var files []*multipart.FileHeader
		files = append(files, r.MultipartForm.File["images"]...)
		files = append(files, r.MultipartForm.File["images[]"]...)
		for _, fh := range files {
			img, err := readUpload(fh)
			if err != nil {
				log.Printf("Error reading uploaded image %s: %v", fh.Filename, err)
				http.Error(w, "Failed to read uploaded image", http.StatusBadRequest)
				return
			}
			req.Images = append(req.Images, img)
		}
	} else if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		req.Text = r.FormValue("text")
		req.SessionID = r.FormValue("session_id")
	} else {
		var body ChatRequestBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		req.Text = body.Text
		req.SessionID = body.SessionID
	}

	resp, err := h.chat.HandleMessage(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrNoInput):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case r.Context().Err() != nil:
			log.Printf("Chat request for session %q abandoned by client: %v", req.SessionID, err)
		default:
			log.Printf("Error handling chat message for session %q: %v", req.SessionID, err)
			http.Error(w, "Failed to process message", http.StatusInternalServerError)
		}
		return
	}
	json.NewEncoder(w).Encode(resp)
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxImageBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxImageBytes {
		return nil, errors.New("image too large")
	}
	return data, nil
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
