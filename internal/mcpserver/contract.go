package mcpserver

// EntryFormatContract describes how LLM consumers should log entries and
// structure import batches.
const EntryFormatContract = `# Vigor Entry Format Contract

Vigor tracks daily activity per **category** (e.g. faith, fitness, reading).
A **goal** is a target amount of one **metric** within a category over a
period; **entries** add to it.

## Logging a single entry

Use the ` + "`" + `log_entry` + "`" + ` tool:

| Field    | Required | Notes                                                        |
|----------|----------|--------------------------------------------------------------|
| category | yes      | Category id or name (case-insensitive)                       |
| value    | yes      | Non-negative number; decimals allowed (e.g. 1.5)             |
| metric   | no       | Metric the value counts toward (e.g. minutes, pages, chapters) |
| date     | no       | YYYY-MM-DD or RFC 3339; defaults to now                      |
| note     | no       | Free text, at most 2000 characters                           |

An entry without a metric counts toward every goal of its category.
An entry with a metric counts only toward goals with the same metric.

## Import batches

Batches are YAML documents handled by the ` + "`" + `import_batch` + "`" + ` tool or dropped
into the inbox directory as ` + "`" + `*.yaml` + "`" + ` files.

` + "```" + `yaml
user: local                 # OPTIONAL – defaults to the configured user
categories:
  - id: fitness             # OPTIONAL – generated when missing
    name: Fitness           # REQUIRED
    color: "#22c55e"        # OPTIONAL
    enabled: true           # OPTIONAL – defaults to true
    position: 1             # OPTIONAL – display order
goals:
  - category: Fitness       # REQUIRED – id, or name of a category in this batch
    metric: minutes         # REQUIRED
    target: 30              # REQUIRED – greater than zero
    period: daily           # OPTIONAL – daily | weekly | monthly (default daily)
entries:
  - category: fitness       # REQUIRED – id, or name of a category in this batch
    metric: minutes         # OPTIONAL
    value: 25               # REQUIRED – zero or more
    date: 2026-10-17        # REQUIRED – YYYY-MM-DD or RFC 3339
    note: Morning run       # OPTIONAL
` + "```" + `

## Rules

1. **Unknown keys are rejected.** Keep to the fields above.
2. **Records with an id are upserted.** Re-importing a batch with ids updates
   the same records; records without ids are always created.
3. **Identical files are imported once.** A batch whose content was already
   imported is archived without being applied again.
4. **Periods** are windows ending on the summarized day: daily is the day
   itself, weekly the last 7 days, monthly the calendar month so far.
5. **Dates** keep their UTC offset; the calendar day is taken in that offset.
`
