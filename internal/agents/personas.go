package agents

import "github.com/Ammar793/realestate-backend/internal/routing"

// Persona is one specialized agent definition sent to the hosted gateway on
// every invocation.
type Persona struct {
	Name         string
	Description  string
	SystemPrompt string
	Tools        []Tool
}

// defaultPersonas builds the fixed persona set. Tools are attached after
// gateway discovery.
func defaultPersonas() map[routing.Persona]*Persona {
	return map[routing.Persona]*Persona{
		routing.PersonaSupervisor: {
			Name:        string(routing.PersonaSupervisor),
			Description: "Coordinates and routes queries to appropriate agents",
			SystemPrompt: "You are a supervisor agent that coordinates real estate analysis tasks. " +
				"Route queries to the appropriate specialized agents and synthesize their responses. " +
				"When you have access to tools, use them proactively to gather information and provide " +
				"data-driven insights. Always provide clear, actionable insights and cite your sources when possible.",
		},
		routing.PersonaRAG: {
			Name:        string(routing.PersonaRAG),
			Description: "Handles knowledge base queries and document retrieval",
			SystemPrompt: "You are a RAG agent specialized in real estate knowledge base queries. " +
				"Use your tools proactively to search knowledge bases, retrieve documents, and gather " +
				"information. Always provide citations and source information when available. " +
				"Focus on providing accurate, up-to-date information from the knowledge base.",
		},
		routing.PersonaMarket: {
			Name:        string(routing.PersonaMarket),
			Description: "Analyzes market trends and provides market insights",
			SystemPrompt: "You are a market analysis agent. Analyze market trends, provide insights on " +
				"pricing, and identify market opportunities. Use your tools proactively to collect market " +
				"data, analyze trends, and provide data-driven insights with specific metrics.",
		},
		routing.PersonaProperty: {
			Name:        string(routing.PersonaProperty),
			Description: "Analyzes individual properties and provides property insights",
			SystemPrompt: "You are a property analysis agent. Analyze property characteristics, zoning, " +
				"permits, and provide property-specific recommendations. Use your tools proactively to " +
				"collect property information, analyze zoning data, and gather permit information. " +
				"Focus on practical insights for real estate development and investment.",
		},
	}
}

// toolTargets maps gateway tool names to the personas that should carry
// them. Unknown tools land on the supervisor.
var toolTargets = map[string][]routing.Persona{
	"rag_query":         {routing.PersonaRAG, routing.PersonaSupervisor},
	"property_analysis": {routing.PersonaProperty, routing.PersonaSupervisor},
	"market_analysis":   {routing.PersonaMarket, routing.PersonaSupervisor},
}

func targetsFor(toolName string) []routing.Persona {
	if t, ok := toolTargets[toolName]; ok {
		return t
	}
	return []routing.Persona{routing.PersonaSupervisor}
}
