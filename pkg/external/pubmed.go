package external

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/trial-match-server/internal/domain"
)

// PubMedClient handles interactions with NCBI PubMed via E-utilities
type PubMedClient struct {
	baseURL    string
	apiKey     string
	email      string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logrus.Logger
}

// NewPubMedClient creates a new PubMed API client
func NewPubMedClient(config domain.PubMedConfig, logger *logrus.Logger) *PubMedClient {
	if config.BaseURL == "" {
		config.BaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 3 // NCBI allows 3 req/s without an API key
	}

	return &PubMedClient{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		apiKey:  config.APIKey,
		email:   config.Email,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		logger:  logger,
	}
}

// pubMedSearchResponse represents the XML response from E-search
type pubMedSearchResponse struct {
	XMLName xml.Name `xml:"eSearchResult"`
	Count   int      `xml:"Count"`
	IDList  struct {
		IDs []string `xml:"Id"`
	} `xml:"IdList"`
}

// pubMedSummaryResponse represents the XML response from E-summary
type pubMedSummaryResponse struct {
	XMLName   xml.Name         `xml:"eSummaryResult"`
	Summaries []articleSummary `xml:"DocSum"`
}

// articleSummary represents a single publication summary
type articleSummary struct {
	UID   string        `xml:"Id"`
	Items []summaryItem `xml:"Item"`
}

// summaryItem represents individual fields in the document summary
type summaryItem struct {
	Name  string `xml:"Name,attr"`
	Type  string `xml:"Type,attr"`
	Value string `xml:",innerxml"`
}

// SearchLiterature queries PubMed for publications matching a free-text
// oncology query and returns a summarized result set.
func (p *PubMedClient) SearchLiterature(ctx context.Context, query string, maxResults int) (*domain.LiteratureResult, error) {
	if query == "" {
		return nil, domain.NewAgentError(domain.ErrInvalidInput, "literature query is required", "", "")
	}
	if maxResults <= 0 {
		maxResults = 20
	}

	searchQuery := p.buildSearchQuery(query)

	pmids, total, err := p.searchArticles(ctx, searchQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to search PubMed: %w", err)
	}

	if len(pmids) == 0 {
		return &domain.LiteratureResult{
			Query:       query,
			RetrievedAt: time.Now().UTC(),
		}, nil
	}

	if len(pmids) > maxResults {
		pmids = pmids[:maxResults]
	}

	summaries, err := p.getArticleSummaries(ctx, pmids)
	if err != nil {
		return nil, fmt.Errorf("failed to get article summaries: %w", err)
	}

	citations := p.convertToCitations(summaries)

	p.logger.WithFields(logrus.Fields{
		"query":     query,
		"total":     total,
		"retrieved": len(citations),
	}).Info("PubMed literature search completed")

	return &domain.LiteratureResult{
		Query:               query,
		TotalCitations:      total,
		RetrievedCitations:  len(citations),
		Citations:           citations,
		HighImpactCitations: p.countHighImpactCitations(citations),
		RecentCitations:     p.countRecentCitations(citations, 5),
		RetrievedAt:         time.Now().UTC(),
	}, nil
}

// searchArticles performs the initial E-search and returns PMIDs with the
// total match count.
func (p *PubMedClient) searchArticles(ctx context.Context, query string) ([]string, int, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, 0, err
	}

	params := url.Values{
		"db":      {"pubmed"},
		"term":    {query},
		"retmode": {"xml"},
		"retmax":  {"100"},
	}
	if p.apiKey != "" {
		params.Set("api_key", p.apiKey)
	}
	if p.email != "" {
		params.Set("email", p.email)
	}

	fullURL := fmt.Sprintf("%s/esearch.fcgi?%s", p.baseURL, params.Encode())

	body, err := p.get(ctx, fullURL, "search")
	if err != nil {
		return nil, 0, err
	}

	var searchResponse pubMedSearchResponse
	if err := xml.Unmarshal(body, &searchResponse); err != nil {
		return nil, 0, fmt.Errorf("failed to parse search response: %w", err)
	}

	return searchResponse.IDList.IDs, searchResponse.Count, nil
}

// getArticleSummaries retrieves summaries for given PMIDs via E-summary.
func (p *PubMedClient) getArticleSummaries(ctx context.Context, pmids []string) ([]articleSummary, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{
		"db":      {"pubmed"},
		"id":      {strings.Join(pmids, ",")},
		"retmode": {"xml"},
	}
	if p.apiKey != "" {
		params.Set("api_key", p.apiKey)
	}

	fullURL := fmt.Sprintf("%s/esummary.fcgi?%s", p.baseURL, params.Encode())

	body, err := p.get(ctx, fullURL, "summary")
	if err != nil {
		return nil, err
	}

	var summaryResponse pubMedSummaryResponse
	if err := xml.Unmarshal(body, &summaryResponse); err != nil {
		return nil, fmt.Errorf("failed to parse summary response: %w", err)
	}

	return summaryResponse.Summaries, nil
}

func (p *PubMedClient) get(ctx context.Context, fullURL, operation string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", operation, err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewAgentError(domain.ErrExternalAPI,
			fmt.Sprintf("PubMed %s returned status %d", operation, resp.StatusCode), fullURL, "")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", operation, err)
	}

	return body, nil
}

// buildSearchQuery scopes a free-text query to clinically relevant oncology
// literature.
func (p *PubMedClient) buildSearchQuery(query string) string {
	filters := []string{
		"(\"lung neoplasms\"[MeSH] OR \"lung cancer\"[tiab] OR \"NSCLC\"[tiab] OR \"SCLC\"[tiab])",
		"(\"clinical trial\"[pt] OR \"treatment outcome\"[tiab] OR \"therapy\"[tiab])",
	}
	return fmt.Sprintf("(%s) AND %s", query, strings.Join(filters, " AND "))
}

// convertToCitations converts PubMed summaries to domain citations
func (p *PubMedClient) convertToCitations(summaries []articleSummary) []domain.Citation {
	var citations []domain.Citation

	for _, summary := range summaries {
		citation := domain.Citation{
			PMID: summary.UID,
			URL:  fmt.Sprintf("https://pubmed.ncbi.nlm.nih.gov/%s/", summary.UID),
		}

		for _, item := range summary.Items {
			switch item.Name {
			case "Title":
				citation.Title = cleanXMLValue(item.Value)
			case "AuthorList":
				citation.Authors = parseAuthors(item.Value)
			case "Source":
				citation.Journal = cleanXMLValue(item.Value)
			case "PubDate":
				if year, err := extractYear(item.Value); err == nil {
					citation.Year = year
				}
			}
		}

		citation.Relevance = assessRelevance(citation.Title)
		citation.StudyType = determineStudyType(citation.Title)

		citations = append(citations, citation)
	}

	return citations
}

// parseAuthors extracts author names from the summary item payload. The
// E-summary author list nests Item elements; splitting on the tag boundaries
// is enough for display purposes.
func parseAuthors(authorXML string) []string {
	fields := strings.FieldsFunc(authorXML, func(r rune) bool {
		return r == '<' || r == '>'
	})

	var authors []string
	for i := 0; i < len(fields); i++ {
		if strings.HasPrefix(fields[i], "Item ") && i+1 < len(fields) {
			if trimmed := strings.TrimSpace(fields[i+1]); trimmed != "" && !strings.HasPrefix(trimmed, "/") {
				authors = append(authors, trimmed)
			}
		}
	}
	if len(authors) == 0 {
		for _, part := range strings.Split(cleanXMLValue(authorXML), ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				authors = append(authors, trimmed)
			}
		}
	}
	return authors
}

// extractYear extracts publication year from date string
func extractYear(dateStr string) (int, error) {
	dateStr = cleanXMLValue(dateStr)

	for _, part := range strings.Fields(dateStr) {
		if len(part) == 4 {
			if year, err := strconv.Atoi(part); err == nil && year > 1900 && year <= time.Now().Year() {
				return year, nil
			}
		}
	}

	return 0, fmt.Errorf("could not extract year from: %s", dateStr)
}

// cleanXMLValue removes common inline XML tags and cleans up text
func cleanXMLValue(value string) string {
	cleaners := []string{
		"<b>", "</b>",
		"<i>", "</i>",
		"<em>", "</em>",
		"<strong>", "</strong>",
	}

	result := value
	for _, cleaner := range cleaners {
		result = strings.ReplaceAll(result, cleaner, "")
	}

	return strings.TrimSpace(result)
}

// assessRelevance scores a citation title for treatment relevance
func assessRelevance(title string) string {
	title = strings.ToLower(title)

	highRelevanceTerms := []string{
		"overall survival", "progression-free", "phase 3", "phase iii",
		"randomized", "first-line", "targeted therapy", "immunotherapy",
	}

	moderateRelevanceTerms := []string{
		"treatment", "therapy", "efficacy", "response", "biomarker", "trial",
	}

	for _, term := range highRelevanceTerms {
		if strings.Contains(title, term) {
			return "high"
		}
	}

	for _, term := range moderateRelevanceTerms {
		if strings.Contains(title, term) {
			return "moderate"
		}
	}

	return "low"
}

// determineStudyType categorizes the type of study
func determineStudyType(title string) string {
	title = strings.ToLower(title)

	if strings.Contains(title, "randomized") || strings.Contains(title, "phase") ||
		strings.Contains(title, "trial") {
		return "clinical_trial"
	}

	if strings.Contains(title, "meta-analysis") || strings.Contains(title, "systematic review") {
		return "meta_analysis"
	}

	if strings.Contains(title, "cohort") || strings.Contains(title, "retrospective") ||
		strings.Contains(title, "real-world") {
		return "observational_study"
	}

	if strings.Contains(title, "case report") || strings.Contains(title, "case series") {
		return "case_report"
	}

	return "other"
}

// countHighImpactCitations counts citations from high-impact journals
func (p *PubMedClient) countHighImpactCitations(citations []domain.Citation) int {
	highImpactJournals := []string{
		"new england journal of medicine", "n engl j med", "lancet",
		"journal of clinical oncology", "j clin oncol", "nature medicine",
		"jama oncology", "annals of oncology", "cancer discovery",
	}

	count := 0
	for _, citation := range citations {
		journalLower := strings.ToLower(citation.Journal)
		for _, journal := range highImpactJournals {
			if strings.Contains(journalLower, journal) {
				count++
				break
			}
		}
	}

	return count
}

// countRecentCitations counts citations from recent years
func (p *PubMedClient) countRecentCitations(citations []domain.Citation, yearsBack int) int {
	cutoffYear := time.Now().Year() - yearsBack
	count := 0

	for _, citation := range citations {
		if citation.Year >= cutoffYear {
			count++
		}
	}

	return count
}
