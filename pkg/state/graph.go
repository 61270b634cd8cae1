// Package state holds the shared blackboard that section agents read and write during a run.
package state

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"report-analyzer/pkg/interfaces"
)

// NodeStatus is the lifecycle state of a workflow node
type NodeStatus string

const (
	NodePending   NodeStatus = "pending"
	NodeRunning   NodeStatus = "running"
	NodeCompleted NodeStatus = "completed"
	NodeFailed    NodeStatus = "failed"
	NodeSkipped   NodeStatus = "skipped"
)

// Done reports whether the status is terminal.
func (s NodeStatus) Done() bool {
	return s == NodeCompleted || s == NodeFailed || s == NodeSkipped
}

// MessageType classifies a GraphMessage
type MessageType string

const (
	MessageTask    MessageType = "task"
	MessageResult  MessageType = "result"
	MessageError   MessageType = "error"
	MessageInfo    MessageType = "info"
	MessageQuery   MessageType = "query"
	MessageInsight MessageType = "insight"
)

// BroadcastRecipient marks a message sent to every node.
const BroadcastRecipient = "*"

// GraphMessage is passed between nodes through the blackboard
type GraphMessage struct {
	ID        string         `json:"id"`
	Type      MessageType    `json:"type"`
	Sender    string         `json:"sender"`
	Recipient string         `json:"recipient"`
	Content   any            `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NodeResult is the outcome of executing one node
type NodeResult struct {
	NodeID        string         `json:"node_id"`
	Status        NodeStatus     `json:"status"`
	Output        any            `json:"output,omitempty"`
	Errors        []string       `json:"errors,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	ExecutionTime time.Duration  `json:"execution_time"`
}

// ChunkEntry is a chunk tracked by the blackboard
type ChunkEntry struct {
	interfaces.Chunk
	Processed bool `json:"processed"`
}

// Finding is one sub-agent observation about a section
type Finding struct {
	Type          string                    `json:"type"`
	ChunkID       string                    `json:"chunk_id,omitempty"`
	Sentiment     *interfaces.Sentiment     `json:"sentiment,omitempty"`
	GovernanceESG *interfaces.GovernanceESG `json:"governance_esg,omitempty"`
	Data          map[string]any            `json:"data,omitempty"`
}

// Insight is a cross-section observation
type Insight struct {
	Source     string                   `json:"source"`
	Type       string                   `json:"type"`
	Content    string                   `json:"content"`
	Sections   []interfaces.SectionName `json:"sections,omitempty"`
	Confidence float64                  `json:"confidence"`
	Timestamp  time.Time                `json:"timestamp"`
}

// SummaryPart is the summary of one chunk within a section
type SummaryPart struct {
	ChunkIndex int    `json:"chunk_index"`
	Text       string `json:"text"`
}

type node struct {
	deps   []string
	status NodeStatus
	result *NodeResult
}

// Graph is the thread-safe blackboard shared by every agent in a run.
type Graph struct {
	mu sync.RWMutex

	id        string
	createdAt time.Time

	chunks       []ChunkEntry
	currentChunk int

	nodes     map[string]*node
	nodeOrder []string

	tasks     []interfaces.Task
	taskQueue []string
	completed map[string]struct{}

	summaries     map[interfaces.SectionName][]SummaryPart
	findings      map[interfaces.SectionName]map[string][]Finding
	metrics       map[interfaces.SectionName][]interfaces.Metric
	risks         map[interfaces.SectionName][]interfaces.Risk
	opportunities map[interfaces.SectionName][]interfaces.Opportunity
	crossRefs     map[interfaces.SectionName][]interfaces.SectionName
	insights      []Insight

	kgEntities      map[string][]string
	kgRelationships map[string][]string
	kgSummary       map[string]any

	queue   []GraphMessage
	history []GraphMessage

	globalReport     string
	executiveSummary string
	recommendations  []string
	metadata         map[string]any
	errors           []string
	warnings         []string

	now func() time.Time
}

// New creates an empty blackboard.
func New() *Graph {
	g := &Graph{
		id:              uuid.NewString(),
		nodes:           make(map[string]*node),
		completed:       make(map[string]struct{}),
		summaries:       make(map[interfaces.SectionName][]SummaryPart),
		findings:        make(map[interfaces.SectionName]map[string][]Finding),
		metrics:         make(map[interfaces.SectionName][]interfaces.Metric),
		risks:           make(map[interfaces.SectionName][]interfaces.Risk),
		opportunities:   make(map[interfaces.SectionName][]interfaces.Opportunity),
		crossRefs:       make(map[interfaces.SectionName][]interfaces.SectionName),
		kgEntities:      make(map[string][]string),
		kgRelationships: make(map[string][]string),
		kgSummary:       make(map[string]any),
		metadata:        make(map[string]any),
		now:             time.Now,
	}
	g.createdAt = g.now()
	return g
}

// ID returns the run identifier.
func (g *Graph) ID() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.id
}

// Chunks

// AddChunk appends a chunk. Its Index is set to its position on the blackboard.
func (g *Graph) AddChunk(c interfaces.Chunk) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	c.Index = len(g.chunks)
	g.chunks = append(g.chunks, ChunkEntry{Chunk: c})
	return c.Index
}

// CurrentChunk returns the chunk at the cursor.
func (g *Graph) CurrentChunk() (interfaces.Chunk, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.currentChunk < 0 || g.currentChunk >= len(g.chunks) {
		return interfaces.Chunk{}, false
	}
	return g.chunks[g.currentChunk].Chunk, true
}

// Chunks returns a copy of every tracked chunk.
func (g *Graph) Chunks() []ChunkEntry {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]ChunkEntry(nil), g.chunks...)
}

// MarkChunkProcessed flags a chunk and advances the cursor past it. Out-of-range indexes are ignored.
func (g *Graph) MarkChunkProcessed(index int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if index < 0 || index >= len(g.chunks) {
		return
	}
	g.chunks[index].Processed = true
	for g.currentChunk < len(g.chunks) && g.chunks[g.currentChunk].Processed {
		g.currentChunk++
	}
}

// Nodes

// AddNode registers a node with the nodes it depends on.
func (g *Graph) AddNode(id string, deps ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.nodes[id]; !ok {
		g.nodeOrder = append(g.nodeOrder, id)
	}
	g.nodes[id] = &node{deps: append([]string(nil), deps...), status: NodePending}
}

// UpdateNodeStatus sets the status of a registered node.
func (g *Graph) UpdateNodeStatus(id string, status NodeStatus) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", interfaces.ErrNodeNotFound, id)
	}
	n.status = status
	return nil
}

// AddNodeResult stores a result and adopts its status.
func (g *Graph) AddNodeResult(r NodeResult) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[r.NodeID]
	if !ok {
		return fmt.Errorf("%w: %s", interfaces.ErrNodeNotFound, r.NodeID)
	}
	n.result = &r
	n.status = r.Status
	return nil
}

// NodeStatus returns the status of a node.
func (g *Graph) NodeStatus(id string) (NodeStatus, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok {
		return "", false
	}
	return n.status, true
}

// NodeResult returns the stored result of a node.
func (g *Graph) NodeResult(id string) (NodeResult, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok || n.result == nil {
		return NodeResult{}, false
	}
	return *n.result, true
}

// CanExecuteNode reports whether every dependency of id has a completed result.
func (g *Graph) CanExecuteNode(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.canExecuteLocked(id)
}

func (g *Graph) canExecuteLocked(id string) bool {
	n, ok := g.nodes[id]
	if !ok {
		return false
	}
	for _, dep := range n.deps {
		d, ok := g.nodes[dep]
		if !ok || d.result == nil || d.result.Status != NodeCompleted {
			return false
		}
	}
	return true
}

// NextPendingNode returns the first registered pending node whose dependencies are met.
func (g *Graph) NextPendingNode() (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, id := range g.nodeOrder {
		if g.nodes[id].status == NodePending && g.canExecuteLocked(id) {
			return id, true
		}
	}
	return "", false
}

// IsComplete reports whether every node reached a terminal status.
func (g *Graph) IsComplete() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, n := range g.nodes {
		if !n.status.Done() {
			return false
		}
	}
	return true
}

// FailedNodes lists failed nodes in registration order.
func (g *Graph) FailedNodes() []string {
	return g.nodesWithStatus(NodeFailed)
}

// PendingNodes lists pending nodes in registration order.
func (g *Graph) PendingNodes() []string {
	return g.nodesWithStatus(NodePending)
}

func (g *Graph) nodesWithStatus(status NodeStatus) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []string
	for _, id := range g.nodeOrder {
		if g.nodes[id].status == status {
			out = append(out, id)
		}
	}
	return out
}

// Tasks

// AddTask queues a task as pending. A task without an id gets a uuid.
func (g *Graph) AddTask(t interfaces.Task) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.Status = interfaces.TaskPending
	g.tasks = append(g.tasks, t)
	g.taskQueue = append(g.taskQueue, t.ID)
	return t.ID
}

// CompleteTask records a result and removes the task from the queue. Completing twice is an error.
func (g *Graph) CompleteTask(id string, result map[string]any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, done := g.completed[id]; done {
		return fmt.Errorf("task %s already completed", id)
	}
	idx := -1
	for i := range g.tasks {
		if g.tasks[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %s", interfaces.ErrTaskNotFound, id)
	}

	g.tasks[idx].Status = interfaces.TaskCompleted
	g.tasks[idx].Result = result
	g.completed[id] = struct{}{}
	for i, qid := range g.taskQueue {
		if qid == id {
			g.taskQueue = append(g.taskQueue[:i], g.taskQueue[i+1:]...)
			break
		}
	}
	return nil
}

// PendingTasks returns queued tasks in insertion order.
func (g *Graph) PendingTasks() []interfaces.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	queued := make(map[string]struct{}, len(g.taskQueue))
	for _, id := range g.taskQueue {
		queued[id] = struct{}{}
	}
	var out []interfaces.Task
	for _, t := range g.tasks {
		if _, ok := queued[t.ID]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Task returns a task by id.
func (g *Graph) Task(id string) (interfaces.Task, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, t := range g.tasks {
		if t.ID == id {
			return t, true
		}
	}
	return interfaces.Task{}, false
}

// CompletedTaskCount returns how many tasks have completed.
func (g *Graph) CompletedTaskCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.completed)
}

// Section results

// AddSectionSummary records the summary of one chunk. Summaries of a section are kept in chunk order.
func (g *Graph) AddSectionSummary(section interfaces.SectionName, chunkIndex int, summary string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	parts := g.summaries[section]
	i := sort.Search(len(parts), func(i int) bool { return parts[i].ChunkIndex > chunkIndex })
	parts = append(parts, SummaryPart{})
	copy(parts[i+1:], parts[i:])
	parts[i] = SummaryPart{ChunkIndex: chunkIndex, Text: summary}
	g.summaries[section] = parts
}

// SectionSummary joins the summaries of one section with blank lines.
func (g *Graph) SectionSummary(section interfaces.SectionName) string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return joinParts(g.summaries[section])
}

func joinParts(parts []SummaryPart) string {
	texts := make([]string, len(parts))
	for i, p := range parts {
		texts[i] = p.Text
	}
	return strings.Join(texts, "\n\n")
}

// SectionSummaries returns every non-empty section summary.
func (g *Graph) SectionSummaries() map[interfaces.SectionName]string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[interfaces.SectionName]string, len(g.summaries))
	for s, parts := range g.summaries {
		if len(parts) > 0 {
			out[s] = joinParts(parts)
		}
	}
	return out
}

// AnalyzedSections lists sections with a summary in report order.
func (g *Graph) AnalyzedSections() []interfaces.SectionName {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []interfaces.SectionName
	for _, s := range interfaces.AllSections() {
		if len(g.summaries[s]) > 0 {
			out = append(out, s)
		}
	}
	return out
}

// AddSectionFinding appends a finding under its type.
func (g *Graph) AddSectionFinding(section interfaces.SectionName, f Finding) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.findings[section] == nil {
		g.findings[section] = make(map[string][]Finding)
	}
	g.findings[section][f.Type] = append(g.findings[section][f.Type], f)
}

// SectionFindings returns the findings of a section keyed by type.
func (g *Graph) SectionFindings(section interfaces.SectionName) map[string][]Finding {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string][]Finding, len(g.findings[section]))
	for k, v := range g.findings[section] {
		out[k] = append([]Finding(nil), v...)
	}
	return out
}

// AddMetric records a metric for a section.
func (g *Graph) AddMetric(section interfaces.SectionName, m interfaces.Metric) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.metrics[section] = append(g.metrics[section], m)
}

// SectionMetrics returns the metrics of a section.
func (g *Graph) SectionMetrics(section interfaces.SectionName) []interfaces.Metric {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]interfaces.Metric(nil), g.metrics[section]...)
}

// AddRisk records a risk for a section.
func (g *Graph) AddRisk(section interfaces.SectionName, r interfaces.Risk) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r.Section = section
	g.risks[section] = append(g.risks[section], r)
}

// SectionRisks returns the risks of a section.
func (g *Graph) SectionRisks(section interfaces.SectionName) []interfaces.Risk {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]interfaces.Risk(nil), g.risks[section]...)
}

// AddOpportunity records an opportunity for a section.
func (g *Graph) AddOpportunity(section interfaces.SectionName, o interfaces.Opportunity) {
	g.mu.Lock()
	defer g.mu.Unlock()
	o.Section = section
	g.opportunities[section] = append(g.opportunities[section], o)
}

// SectionOpportunities returns the opportunities of a section.
func (g *Graph) SectionOpportunities(section interfaces.SectionName) []interfaces.Opportunity {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]interfaces.Opportunity(nil), g.opportunities[section]...)
}

// AddCrossReference links source to target once.
func (g *Graph) AddCrossReference(source, target interfaces.SectionName) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, t := range g.crossRefs[source] {
		if t == target {
			return
		}
	}
	g.crossRefs[source] = append(g.crossRefs[source], target)
}

// CrossReferences returns a copy of the cross reference map.
func (g *Graph) CrossReferences() map[interfaces.SectionName][]interfaces.SectionName {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[interfaces.SectionName][]interfaces.SectionName, len(g.crossRefs))
	for k, v := range g.crossRefs {
		out[k] = append([]interfaces.SectionName(nil), v...)
	}
	return out
}

// AddCollaborativeInsight stamps and stores an insight.
func (g *Graph) AddCollaborativeInsight(in Insight) {
	g.mu.Lock()
	defer g.mu.Unlock()
	in.Timestamp = g.now()
	g.insights = append(g.insights, in)
}

// CollaborativeInsights returns insights in arrival order.
func (g *Graph) CollaborativeInsights() []Insight {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]Insight(nil), g.insights...)
}

// Knowledge graph references

// AddKGEntities records the entity ids extracted from a chunk.
func (g *Graph) AddKGEntities(chunkID string, ids []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.kgEntities[chunkID] = append([]string(nil), ids...)
}

// AddKGRelationships records the relationship ids extracted from a chunk.
func (g *Graph) AddKGRelationships(chunkID string, ids []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.kgRelationships[chunkID] = append([]string(nil), ids...)
}

// KGEntities returns the chunk to entity id map.
func (g *Graph) KGEntities() map[string][]string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return copyRefs(g.kgEntities)
}

// KGRelationships returns the chunk to relationship id map.
func (g *Graph) KGRelationships() map[string][]string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return copyRefs(g.kgRelationships)
}

func copyRefs(in map[string][]string) map[string][]string {
	out := make(map[string][]string, len(in))
	for k, v := range in {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// UpdateKGSummary replaces the knowledge graph statistics.
func (g *Graph) UpdateKGSummary(summary map[string]any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.kgSummary = summary
}

// Messages

// Send queues a message and records it in the history.
func (g *Graph) Send(m GraphMessage) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = g.now()
	}
	g.queue = append(g.queue, m)
	g.history = append(g.history, m)
}

// Receive removes and returns the queued messages for recipient.
func (g *Graph) Receive(recipient string) []GraphMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	var mine []GraphMessage
	rest := g.queue[:0]
	for _, m := range g.queue {
		if m.Recipient == recipient {
			mine = append(mine, m)
		} else {
			rest = append(rest, m)
		}
	}
	g.queue = rest
	return mine
}

// Broadcast queues a copy of the message for every node except the sender.
func (g *Graph) Broadcast(sender string, msgType MessageType, content any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	m := GraphMessage{
		ID:        uuid.NewString(),
		Type:      msgType,
		Sender:    sender,
		Recipient: BroadcastRecipient,
		Content:   content,
		Timestamp: g.now(),
	}
	g.history = append(g.history, m)
	for _, id := range g.nodeOrder {
		if id == sender {
			continue
		}
		copyMsg := m
		copyMsg.Recipient = id
		g.queue = append(g.queue, copyMsg)
	}
}

// History returns every message sent so far.
func (g *Graph) History() []GraphMessage {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]GraphMessage(nil), g.history...)
}

// Errors and warnings

// AddError records a timestamped error.
func (g *Graph) AddError(msg string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.errors = append(g.errors, g.stamp(msg))
}

// AddWarning records a timestamped warning.
func (g *Graph) AddWarning(msg string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.warnings = append(g.warnings, g.stamp(msg))
}

func (g *Graph) stamp(msg string) string {
	return fmt.Sprintf("[%s] %s", g.now().Format(time.RFC3339), msg)
}

// Errors returns recorded errors.
func (g *Graph) Errors() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.errors...)
}

// Warnings returns recorded warnings.
func (g *Graph) Warnings() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.warnings...)
}

// Global outputs

// SetReport stores the final outputs of the run.
func (g *Graph) SetReport(globalReport, executiveSummary string, recommendations []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.globalReport = globalReport
	g.executiveSummary = executiveSummary
	g.recommendations = append([]string(nil), recommendations...)
}

// GlobalReport returns the compiled plain-text report.
func (g *Graph) GlobalReport() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.globalReport
}

// SetMetadata stores a run-level value.
func (g *Graph) SetMetadata(key string, value any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.metadata[key] = value
}

// Summary describes the progress of the run
type Summary struct {
	GraphID              string                   `json:"graph_id"`
	CreatedAt            time.Time                `json:"created_at"`
	ChunksProcessed      int                      `json:"chunks_processed"`
	TotalChunks          int                      `json:"total_chunks"`
	NodesCompleted       int                      `json:"nodes_completed"`
	TotalNodes           int                      `json:"total_nodes"`
	TasksCompleted       int                      `json:"tasks_completed"`
	TotalTasks           int                      `json:"total_tasks"`
	SectionsAnalyzed     []interfaces.SectionName `json:"sections_analyzed"`
	KGEntitiesCount      int                      `json:"kg_entities_count"`
	KGRelationshipsCount int                      `json:"kg_relationships_count"`
	Errors               int                      `json:"errors"`
	Warnings             int                      `json:"warnings"`
}

// Summary returns progress counters.
func (g *Graph) Summary() Summary {
	sections := g.AnalyzedSections()

	g.mu.RLock()
	defer g.mu.RUnlock()
	s := Summary{
		GraphID:          g.id,
		CreatedAt:        g.createdAt,
		TotalChunks:      len(g.chunks),
		TotalNodes:       len(g.nodes),
		TasksCompleted:   len(g.completed),
		TotalTasks:       len(g.tasks),
		SectionsAnalyzed: sections,
		Errors:           len(g.errors),
		Warnings:         len(g.warnings),
	}
	for _, c := range g.chunks {
		if c.Processed {
			s.ChunksProcessed++
		}
	}
	for _, n := range g.nodes {
		if n.status == NodeCompleted {
			s.NodesCompleted++
		}
	}
	for _, ids := range g.kgEntities {
		s.KGEntitiesCount += len(ids)
	}
	for _, ids := range g.kgRelationships {
		s.KGRelationshipsCount += len(ids)
	}
	return s
}
