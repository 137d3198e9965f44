package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"

	"arena_server/models"
	"arena_server/notifier"
	"arena_server/routes"
	"arena_server/services"
	"arena_server/socket"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using process environment")
	}

	// Initialize DynamoDB clients and store service
	log.Println("Initializing DynamoDB client...")
	dynamoClient := services.InitializeDynamoDBClient()
	dynamoService := &services.DynamoService{Client: dynamoClient}
	streamService := services.NewStreamService(dynamoClient, services.InitializeStreamsClient())
	log.Println("DynamoDB client initialized.")

	// Initialize Services
	problemService := &services.ProblemService{Dynamo: dynamoService}
	queueService := &services.QueueService{Dynamo: dynamoService, Problems: problemService}
	matchService := &services.MatchService{Dynamo: dynamoService}
	statsService := &services.StatsService{Dynamo: dynamoService}
	profileService := &services.ProfileService{Dynamo: dynamoService}
	judgeService := services.NewJudgeService()
	archiveService := services.NewArchiveService()
	cleanupService := &services.CleanupService{
		Dynamo:  dynamoService,
		Matches: matchService,
		Stats:   statsService,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Background workers: stream pollers and the staleness sweeper
	go streamService.Run(ctx, models.RoomsTable)
	go streamService.Run(ctx, models.MatchesTable)
	go cleanupService.Run(ctx)

	// Socket.IO server for realtime match notifications
	matchNotifier := notifier.New(streamService, matchService)
	socketServer := socket.NewSocketServer(matchNotifier, matchService, statsService)
	go func() {
		if err := socketServer.Serve(); err != nil {
			log.Fatalf("Socket server error: %v", err)
		}
	}()
	defer socketServer.Close()

	// Set up the server port
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Printf("Using server port: %s\n", port)

	// Initialize the router
	r := mux.NewRouter()

	// Register a welcome route
	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "Welcome to Arena")
	}).Methods("GET")

	// Register a health check endpoint
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		response := map[string]string{"status": "healthy"}
		json.NewEncoder(w).Encode(response)
	}).Methods("GET")

	r.Handle("/socket.io/", socketServer)

	// Register routes
	routes.RegisterQueueRoutes(r, queueService)
	routes.RegisterBattleRoutes(r, matchService, statsService, archiveService)
	routes.RegisterJudgeRoutes(r, judgeService, problemService)
	routes.RegisterProfileRoutes(r, profileService)

	// Add CORS middleware
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"}, // Adjust for specific domains if needed
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}).Handler(r)

	// Start the HTTP server
	log.Printf("Starting server on port %s...\n", port)
	log.Fatal(http.ListenAndServe(":"+port, corsHandler))
}
