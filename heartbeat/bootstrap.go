package heartbeat

// masterplanSlug addresses the canvas document the daemon treats as its
// own roadmap. It is simply the first slug ever written to the canvas
// store — there is no separate masterplan API.
const masterplanSlug = "masterplan"

// masterplanDocument is the default roadmap seeded into the memory port
// on first boot. Re-authored from the original agent's bootstrap content
// (original_source/cradle/main.py), not copied verbatim.
const masterplanDocument = `# Cradle Roadmap

## Mission
Grow capability and resources through continuous, incremental self-improvement,
always in service of the operator's goals.

## Layer 0 — Foundation (current)
- Keep the core stable: fix bugs, widen error handling, add coverage.
- Minimize LLM spend per completed task.
- Keep learnings in long-term memory so restarts don't lose context.
- Respond to chat commands promptly.
- Ship self-improvements by pushing to the repo and restarting cleanly.

## Layer 1 — Capability expansion
- Add tool access (browsing, search) inside the sandbox.
- Delegate well-scoped subtasks to spawned workers.
- Route each task to the provider best suited for it.
- Track new tools and techniques worth adopting.
- Grow the skill library with reusable, documented capabilities.

## Layer 2 — Value creation
- Apply automated scanning and hardening where useful.
- Improve the memory/skill platform itself.
- Take on well-defined external work when capacity allows.

## Layer 3 — Resource acquisition
- Turn surplus capability into revenue that funds more compute.
- Upgrade hardware and model access as resources allow.
- Bring in collaborators, human or agent, as the work grows.

## Layer 4+ — Compounding growth
- Explore new execution paradigms as they become viable.
- Revisit this roadmap as capability and resources change.
`

type bootstrapTask struct {
	title       string
	description string
}

// bootstrapTasks seed the task queue on first boot. Re-authored in shape
// and intent from original_source/cradle/main.py's BOOTSTRAP_TASKS.
var bootstrapTasks = []bootstrapTask{
	{
		title: "Self-health check across core subsystems",
		description: "Verify the LLM router can complete a call with failover, the sandbox can " +
			"run a trivial program, the memory port can store and recall a value, and the repo " +
			"client can read a file from the default branch. Report a structured pass/fail summary.",
	},
	{
		title: "Harden the LLM router's error handling",
		description: "Review the router's failure handling: confirm each provider's errors are " +
			"distinguished by kind (rate limit, auth, transport), demotion triggers after repeated " +
			"failures, and a fully exhausted provider list surfaces a clear terminal error.",
	},
	{
		title: "Persist the roadmap into long-term memory",
		description: "Store the current roadmap document as a structured memory record covering " +
			"the mission statement and the active layer's priorities, so it survives a restart even " +
			"if the canvas document is unavailable.",
	},
}

type improvementTemplate struct {
	title       string
	description string
}

// improvementTemplates is the immutable round-robin list idle seeding
// advances through. Order is significant: improvementIndex selects by
// position modulo len(improvementTemplates).
var improvementTemplates = []improvementTemplate{
	{
		title:       "Look for a small efficiency improvement",
		description: "Inspect recent task outcomes and propose one concrete change that would reduce LLM token spend or sandbox runtime for common tasks.",
	},
	{
		title:       "Review recent failures for a recurring cause",
		description: "Look across recently failed tasks for a shared root cause and propose a fix or a new skill that would prevent it from recurring.",
	},
	{
		title:       "Expand skill coverage",
		description: "Identify a capability used informally across recent tasks that would benefit from being captured as a documented, reusable skill.",
	},
	{
		title:       "Audit the roadmap against actual progress",
		description: "Compare the current roadmap's Layer 0 checklist against what has actually shipped, and propose the next concrete milestone.",
	},
}
