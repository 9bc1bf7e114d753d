// Command authz-rag answers questions over a folder of cloud
// documents, retrieving only the documents the logged-in user is
// authorized to read. Folder ACLs are mirrored into an external
// relation-tuple authorization service, which is consulted per
// document during retrieval.
package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"authz-rag/internal/authn"
	"authz-rag/internal/authz"
	"authz-rag/internal/config"
	"authz-rag/internal/drive"
	"authz-rag/internal/embeddings"
	"authz-rag/internal/llm"
	"authz-rag/internal/mirror"
	"authz-rag/internal/permissions"
	"authz-rag/internal/retrieval"
	"authz-rag/internal/storage"
)

func main() {
	// Tokens are commonly kept in a .env file; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatal("Failed to load configuration: ", err)
	}

	// Ingest documents from the source store.
	driveClient := drive.NewClient(cfg.Drive.BaseURL, cfg.Drive.AccessToken)
	log.Printf("Fetching documents from folder %s...", cfg.Drive.FolderID)
	docs, err := driveClient.ListFolder(cfg.Drive.FolderID)
	if err != nil {
		log.Fatal("Failed to fetch documents: ", err)
	}
	log.Printf("Fetched %d documents", len(docs))

	// Mirror the folder's ACLs into the authorization graph before
	// serving any queries.
	authzClient := authz.NewClient(cfg.Pangea.AuthZBaseURL(), cfg.Pangea.AuthZToken)
	mir := mirror.New(driveClient, authzClient)
	if err := mir.MirrorFolder(docs); err != nil {
		log.Fatal("Failed to mirror permissions: ", err)
	}

	// Resolve the session's subject via the hosted login flow.
	flow := authn.NewFlow(cfg.Pangea.AuthNBaseURL(), cfg.Pangea.AuthNClientToken,
		cfg.Pangea.AuthNHostedLogin, cfg.Pangea.CallbackAddr)
	identity, err := flow.PromptLogin()
	if err != nil {
		log.Fatal("Login failed: ", err)
	}
	fmt.Printf("\nAuthenticated as %s (%s).\n\n", identity.Email, identity.ID)

	oracle := permissions.NewOracle(authzClient, authz.Subject{Type: "user", ID: identity.Email})

	// Embed the documents into the vector store.
	vectorStore, err := storage.NewSQLiteVectorStore(cfg.Database.Path)
	if err != nil {
		log.Fatal("Failed to initialize vector store: ", err)
	}
	defer func() {
		if err := vectorStore.Close(); err != nil {
			log.Printf("Error closing vector store: %v", err)
		}
	}()

	embedder := embeddings.NewEmbedder(cfg.OpenAI.BaseURL, cfg.OpenAI.APIKey, cfg.OpenAI.EmbeddingModel)
	for i := range docs {
		embedding, err := embedder.GetEmbedding(docs[i].Content)
		if err != nil {
			log.Fatal("Failed to embed document ", docs[i].Name, ": ", err)
		}
		docs[i].Embedding = embedding
		if err := vectorStore.AddDocument(&docs[i]); err != nil {
			log.Fatal("Failed to store document ", docs[i].Name, ": ", err)
		}
	}

	retriever := retrieval.NewRetriever(vectorStore, embedder, oracle, cfg.Retrieval.TopK)
	searchTool := retrieval.NewSearchTool(driveClient, mir, oracle,
		cfg.Drive.FolderID, cfg.Retrieval.Mode, cfg.Retrieval.NumResults)
	chat := llm.NewClient(cfg.OpenAI.BaseURL, cfg.OpenAI.APIKey, cfg.OpenAI.Model)

	runPromptLoop(retriever, searchTool, chat)
}

// runPromptLoop reads questions until EOF. Plain questions go through
// the ranked retriever and the chat model. Lines starting with
// "/search " run the free-text search tool and print its raw output,
// the same text an agent loop would consume.
func runPromptLoop(retriever *retrieval.Retriever, searchTool *retrieval.SearchTool, chat *llm.Client) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("Ask a question about PTO availability: ")
		if !scanner.Scan() {
			return
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}

		if query, ok := strings.CutPrefix(question, "/search "); ok {
			snippets, err := searchTool.Run(query)
			if err != nil {
				log.Fatal("Search failed: ", err)
			}
			fmt.Println(snippets)
			fmt.Println()
			continue
		}

		docs, err := retriever.Retrieve(question)
		if err != nil {
			log.Fatal("Retrieval failed: ", err)
		}
		answer, err := chat.Generate(question, docs)
		if err != nil {
			log.Fatal("Failed to generate answer: ", err)
		}
		fmt.Println(answer)
		fmt.Println()
	}
}
