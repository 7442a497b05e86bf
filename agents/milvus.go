package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/opsmind/opsmind/adapters/milvus"
	"github.com/opsmind/opsmind/types"
)

const defaultCollection = "opsmind_docs"

// MilvusRAGAgent owns the vector store: document ingest with chunking and
// hybrid retrieval over stored knowledge.
type MilvusRAGAgent struct {
	client     *milvus.Client
	collection string
}

func NewMilvusRAGAgent(client *milvus.Client, collection string) *MilvusRAGAgent {
	if collection == "" {
		collection = defaultCollection
	}
	return &MilvusRAGAgent{client: client, collection: collection}
}

func (a *MilvusRAGAgent) Name() string { return "milvus-rag" }

func (a *MilvusRAGAgent) Description() string {
	return "knowledge base: ingest documents with chunking, hybrid vector search"
}

func (a *MilvusRAGAgent) Handle(ctx context.Context, req types.AgentRequest) (types.AgentResponse, error) {
	if content := contextString(req.Context, "document"); content != "" {
		return a.ingest(ctx, req, content)
	}
	if strings.Contains(strings.ToLower(req.Query), "create collection") {
		if err := a.client.CreateCollection(ctx, a.collection); err != nil {
			return types.AgentResponse{}, err
		}
		return respond(fmt.Sprintf("Collection %q is ready.", a.collection), nil), nil
	}
	return a.search(ctx, req.Query)
}

func (a *MilvusRAGAgent) ingest(ctx context.Context, req types.AgentRequest, content string) (types.AgentResponse, error) {
	method := milvus.ChunkMethod(contextString(req.Context, "chunk_method"))
	meta := milvus.Chunk{
		Title:    contextString(req.Context, "title"),
		FilePath: contextString(req.Context, "file_path"),
		DocType:  contextString(req.Context, "doc_type"),
		Language: contextString(req.Context, "language"),
	}
	if keywords := contextString(req.Context, "keywords"); keywords != "" {
		meta.Keywords = strings.Split(keywords, ",")
	}
	count, err := a.client.InsertDocument(ctx, a.collection, content, method, meta)
	if err != nil {
		return types.AgentResponse{}, fmt.Errorf("ingest failed: %w", err)
	}
	return respond(fmt.Sprintf("Stored %d chunks in %q.", count, a.collection),
		map[string]any{"chunks": count, "collection": a.collection}), nil
}

func (a *MilvusRAGAgent) search(ctx context.Context, query string) (types.AgentResponse, error) {
	hits, err := a.client.HybridSearch(ctx, a.collection, query, 5, 0.2)
	if err != nil {
		return types.AgentResponse{}, fmt.Errorf("knowledge base search failed: %w", err)
	}
	if len(hits) == 0 {
		return respond("Nothing relevant in the knowledge base for that query.", nil), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Top knowledge base matches for %q:\n", query)
	for i, hit := range hits {
		snippet := hit.Content
		if len(snippet) > 200 {
			snippet = snippet[:200] + "…"
		}
		fmt.Fprintf(&b, "%d. (%.2f) %s\n", i+1, hit.Score, snippet)
	}
	return respond(b.String(), map[string]any{"hits": hits}), nil
}
