package kb

// Wire types for the hosted retrieve-and-generate API. The service is an
// opaque collaborator; these mirror its request/response contract and are
// never interpreted beyond the fields named here.

const (
	metaPageKey  = "x-amz-bedrock-kb-document-page-number"
	metaChunkKey = "x-amz-bedrock-kb-document-chunk"
)

type retrieveAndGenerateRequest struct {
	Input struct {
		Text string `json:"text"`
	} `json:"input"`
	RetrieveAndGenerateConfiguration struct {
		Type                       string `json:"type"`
		KnowledgeBaseConfiguration struct {
			KnowledgeBaseID        string `json:"knowledgeBaseId"`
			ModelARN               string `json:"modelArn"`
			RetrievalConfiguration struct {
				VectorSearchConfiguration struct {
					NumberOfResults int `json:"numberOfResults"`
				} `json:"vectorSearchConfiguration"`
			} `json:"retrievalConfiguration"`
			GenerationConfiguration struct {
				PromptTemplate struct {
					TextPromptTemplate string `json:"textPromptTemplate"`
				} `json:"promptTemplate"`
			} `json:"generationConfiguration"`
		} `json:"knowledgeBaseConfiguration"`
	} `json:"retrieveAndGenerateConfiguration"`
}

type retrieveAndGenerateResponse struct {
	Output struct {
		Text string `json:"text"`
	} `json:"output"`
	Citations []wireCitation `json:"citations"`
}

type wireCitation struct {
	GeneratedResponsePart struct {
		TextResponsePart struct {
			Span *struct {
				Start int `json:"start"`
				End   int `json:"end"`
			} `json:"span"`
		} `json:"textResponsePart"`
	} `json:"generatedResponsePart"`
	RetrievedReferences []wireReference `json:"retrievedReferences"`
}

type wireReference struct {
	Content struct {
		Text string `json:"text"`
	} `json:"content"`
	Location struct {
		WebLocation *struct {
			URL string `json:"url"`
		} `json:"webLocation"`
		S3Location *struct {
			URI string `json:"uri"`
		} `json:"s3Location"`
	} `json:"location"`
	Metadata map[string]any `json:"metadata"`
}
