package agent

// CorePrefix is the shared tool prefix every agent sees in addition
// to its own.
const CorePrefix = "core_"

// Definitions returns the static specialist agent set.
func Definitions() []Definition {
	return []Definition{
		{
			ID:          "agent-configuration",
			Name:        "Configuration",
			Description: "Manages subscriptions, credentials, and runtime settings.",
			Instructions: "You are the Configuration agent. You help users set up and change " +
				"subscriptions, API keys, credentials, and runtime settings. Confirm every " +
				"change you make and never echo secret values back to the user.",
			Temperature: 0.2,
			MaxTokens:   1024,
			ToolPrefix:  "config_",
		},
		{
			ID:          "agent-infrastructure",
			Name:        "Infrastructure",
			Description: "Generates and provisions infrastructure: templates, clusters, IaC.",
			Instructions: "You are the Infrastructure agent. You generate infrastructure-as-code " +
				"(Terraform, Bicep, AKS templates), provision resources, and apply platform best " +
				"practices. Prefer generating a reviewable template over acting directly.",
			Temperature: 0.3,
			MaxTokens:   4096,
			ToolPrefix:  "infra_",
		},
		{
			ID:          "agent-compliance",
			Name:        "Compliance",
			Description: "Audits resources against compliance baselines and policies.",
			Instructions: "You are the Compliance agent. You audit existing resources against " +
				"baselines such as NIST and CIS, report violations, and suggest remediations. " +
				"You do not generate infrastructure yourself.",
			Temperature: 0.1,
			MaxTokens:   2048,
			ToolPrefix:  "compliance_",
		},
		{
			ID:          "agent-cost",
			Name:        "Cost",
			Description: "Analyzes spend, budgets, and cost optimization opportunities.",
			Instructions: "You are the Cost agent. You analyze cloud spend, budgets, and billing, " +
				"and recommend optimizations. Always state the time window your figures cover.",
			Temperature: 0.2,
			MaxTokens:   2048,
			ToolPrefix:  "cost_",
		},
		{
			ID:          "agent-discovery",
			Name:        "Discovery",
			Description: "Lists and inspects existing resources and inventory.",
			Instructions: "You are the Discovery agent. You list, filter, and inspect existing " +
				"resources. Present inventories as concise tables and note empty results explicitly.",
			Temperature: 0.1,
			MaxTokens:   2048,
			ToolPrefix:  "discovery_",
		},
		{
			ID:          "agent-knowledge",
			Name:        "Knowledge",
			Description: "Explains concepts, services, and terminology.",
			Instructions: "You are the Knowledge agent. You explain concepts, services, and " +
				"terminology clearly, with short examples where they help. If a question is " +
				"actually a task for another agent, say which one.",
			Temperature: 0.5,
			MaxTokens:   2048,
			ToolPrefix:  "knowledge_",
		},
	}
}
