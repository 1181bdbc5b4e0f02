package prompts

// Default templates for each research step. Placeholders use {name} syntax
// and are substituted by Render.

const defaultQueryWriter = `Current date: {current_date}

You are generating web search queries for thorough research on the topic below.

Topic: {research_topic}

Generate exactly {number_queries} diverse search queries that together cover
the topic. Prefer recent, specific phrasings over broad ones.

Respond with a JSON object of the form:
{"queries": ["query one", "query two"], "rationale": "one sentence"}`

const defaultWebSearcher = `Current date: {current_date}

Summarize the key verifiable facts in the search results below as they relate
to the query "{query}". Keep source attributions inline and flag conflicting
claims explicitly.

Search results:
{results}`

const defaultReflection = `Current date: {current_date}

You are auditing research gathered on the topic below for completeness.

Topic: {research_topic}

Summaries gathered so far:
{summaries}

Decide whether these summaries already answer the topic. Respond with a JSON
object of the form:
{"is_sufficient": true, "knowledge_gap": "", "follow_up_queries": []}

If insufficient, name the knowledge gap and propose targeted follow-up
queries that close it.`

const defaultAnswer = `Current date: {current_date}

Write the final research report for the topic below, grounded strictly in the
gathered summaries. Structure the report with a direct answer first, then
supporting detail. Do not invent facts absent from the summaries.

Topic: {research_topic}

Summaries:
{summaries}`

const defaultDirect = `Current date: {current_date}

Based on your training knowledge, provide a comprehensive answer to the
following question:

{research_topic}

Give a clear, well-structured response. If the information may be outdated or
you are uncertain about current events, say so explicitly, and do not invent
specific facts, dates, or statistics you are not confident about.`

// Defaults returns the built-in prompt set.
func Defaults() Set {
	return Set{
		QueryWriter: defaultQueryWriter,
		WebSearcher: defaultWebSearcher,
		Reflection:  defaultReflection,
		Answer:      defaultAnswer,
		Direct:      defaultDirect,
	}
}
