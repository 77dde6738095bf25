package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"smartrag.com/shop-assistant/internal/api"
	"smartrag.com/shop-assistant/internal/auth"
	"smartrag.com/shop-assistant/internal/config"
	"smartrag.com/shop-assistant/internal/core"
	"smartrag.com/shop-assistant/internal/embedding"
	"smartrag.com/shop-assistant/internal/index"
	"smartrag.com/shop-assistant/internal/messenger"
	"smartrag.com/shop-assistant/internal/store"
)

func main() {
	// Load configuration
	config.LoadConfig()

	// Setup logging
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if config.AppConfig.LogLevel == "DEBUG" {
		log.Println("Service starting in DEBUG mode")
	}

	// Command line flag for catalog ingestion
	ingestFile := flag.String("ingest", "", "Ingest the catalog JSON file at this path, build the indexes and exit")
	flag.Parse()

	persona, err := config.LoadPersona(config.AppConfig.PersonaFile)
	if err != nil {
		log.Fatalf("Failed to load persona: %v", err)
	}

	// Initialize database store
	dbStore, err := store.NewSQLiteStore(config.AppConfig.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer dbStore.Close()

	// Initialize LLM service
	llmService := core.NewLLMService()
	defer llmService.Close()

	var imageEmbedder core.ImageEmbedder
	var embedImage store.ImageEmbedFunc
	if config.AppConfig.ImageEmbedderURL != "" {
		clip := embedding.NewCLIPClient(embedding.CLIPConfig{BaseURL: config.AppConfig.ImageEmbedderURL})
		imageEmbedder = clip
		embedImage = clip.EmbedImage
	} else {
		log.Println("IMAGE_EMBEDDER_URL is empty, image search is disabled")
	}

	var collections map[core.Modality]*index.Qdrant
	if config.AppConfig.IndexBackend == "qdrant" {
		collections = qdrantCollections()
	}

	// Handle catalog ingestion if flag is set
	if *ingestFile != "" {
		runIngest(*ingestFile, dbStore, llmService, embedImage, collections)
		return
	}

	var loader core.IndexLoader
	if collections != nil {
		loader = core.NewQdrantIndexLoader(dbStore, collections)
	} else {
		loader = core.NewMemoryIndexLoader(dbStore)
	}
	candidates := core.NewCandidateStore(loader, llmService, imageEmbedder)
	loadCtx, cancelLoad := context.WithTimeout(context.Background(), time.Minute)
	if err := candidates.Load(loadCtx); err != nil {
		log.Printf("Warning: starting with unavailable indexes: %v", err)
	}
	cancelLoad()

	orchestrator := core.NewOrchestrator(candidates, core.OrchestratorOptions{
		ImageK:         config.AppConfig.ImageSearchK,
		ImageThreshold: config.AppConfig.ImageMatchThreshold,
		ShowAllPhrases: persona.ShowAllPhrases,
		JustOnePhrases: persona.JustOnePhrases,
	})
	composer, err := core.NewComposer(llmService, persona)
	if err != nil {
		log.Fatalf("Failed to initialize composer: %v", err)
	}
	sessions := core.NewSessionStore(
		config.AppConfig.SessionExpireAfter,
		config.AppConfig.SessionTranscriptLimit,
		time.Duration(config.AppConfig.SessionIdleMinutes)*time.Minute,
	)
	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	defer stopJanitor()
	go sessions.RunJanitor(janitorCtx, time.Minute)

	// Initialize Chat service
	chatService := core.NewChatService(core.NewClassifier(), orchestrator, composer, sessions, persona)

	seedAdmin(dbStore)

	graph := messenger.NewGraphClient(messenger.GraphConfig{
		URL:         config.AppConfig.FBGraphURL,
		AccessToken: config.AppConfig.FBPageAccessToken,
	})
	bridge := messenger.NewBridge(chatService, graph, messenger.BridgeConfig{
		VerifyToken: config.AppConfig.FBVerifyToken,
		AppSecret:   config.AppConfig.FBAppSecret,
	}, persona)
	if config.AppConfig.FBAppSecret == "" {
		log.Println("FB_APP_SECRET is empty, webhook events will be rejected")
	}

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(chatService, dbStore, candidates)
	router := api.NewRouter(apiHandler, bridge)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", config.AppConfig.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // generation plus image embedding can take a while
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		log.Printf("Starting server on %s. Press Ctrl+C to quit.", serverAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", serverAddr, err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting gracefully")
}

func qdrantCollections() map[core.Modality]*index.Qdrant {
	out := make(map[core.Modality]*index.Qdrant, 2)
	for _, m := range []core.Modality{core.ModalityImage, core.ModalityText} {
		out[m] = index.NewQdrant(index.QdrantConfig{
			URL:        config.AppConfig.QdrantURL,
			APIKey:     config.AppConfig.QdrantAPIKey,
			Collection: fmt.Sprintf("%s_%s", config.AppConfig.QdrantCollectionPrefix, m),
		})
	}
	return out
}

func runIngest(path string, dbStore *store.SQLiteStore, llm *core.LLMService, embedImage store.ImageEmbedFunc, collections map[core.Modality]*index.Qdrant) {
	log.Printf("Starting catalog ingestion from %s...", path)
	ctx := context.Background()

	stats, err := dbStore.IngestCatalogFile(ctx, path, llm.EmbedText, embedImage)
	if err != nil {
		log.Fatalf("Catalog ingestion failed: %v", err)
	}
	log.Printf("Catalog ingestion complete: %d products, %d text vectors, %d image vectors.",
		stats.Products, stats.TextVectors, stats.ImageVectors)

	if collections != nil {
		if err := core.PublishToQdrant(ctx, dbStore, collections); err != nil {
			log.Fatalf("Publishing vectors to Qdrant failed: %v", err)
		}
	}
	log.Println("Ingestion finished. Exiting.")
}

// seedAdmin creates the first catalog administrator from ADMIN_USER and
// ADMIN_PASSWORD when that user does not exist yet.
func seedAdmin(dbStore *store.SQLiteStore) {
	username, password := config.AppConfig.AdminUser, config.AppConfig.AdminPassword
	if username == "" || password == "" {
		return
	}
	existing, err := dbStore.GetUserByUsername(username)
	if err != nil {
		log.Fatalf("Failed to look up admin %s: %v", username, err)
	}
	if existing != nil {
		return
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		log.Fatalf("Failed to hash admin password: %v", err)
	}
	if _, err := dbStore.CreateUser(username, hash); err != nil {
		log.Fatalf("Failed to create admin %s: %v", username, err)
	}
	log.Printf("Seeded admin user %s", username)
}
