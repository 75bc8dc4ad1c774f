package mcpserver

// KeyFormatContract describes how cardsync addresses records, so LLM
// consumers can build keys and pick card ids without guessing.
const KeyFormatContract = `# cardsync Addressing Contract

## Storage keys

Every record is stored under a four-segment key:

` + "```" + `
prefix:version:type:identifier
` + "```" + `

- **prefix**: namespace, default ` + "`" + `cardsync` + "`" + `. Per-mode partitions use ` + "`" + `<prefix>/<mode>` + "`" + `.
- **version**: data version, REQUIRED and non-empty (e.g. ` + "`" + `v1` + "`" + `).
- **type**: ` + "`" + `envFull` + "`" + ` (a card) or ` + "`" + `questionBank` + "`" + `. Aliases such as ` + "`" + `env` + "`" + `,
  ` + "`" + `env_full` + "`" + `, ` + "`" + `qb` + "`" + ` are normalized.
- **identifier**: a card id, a full id, or ` + "`" + `_` + "`" + ` (no specific record).

Each segment is percent-encoded on its own, so a colon never appears inside one.
Use the ` + "`" + `build_key` + "`" + ` and ` + "`" + `parse_key` + "`" + ` tools instead of assembling keys by hand.

## Card ids

- Spreadsheet-style columns: ` + "`" + `A` + "`" + ` … ` + "`" + `Z` + "`" + `, ` + "`" + `AA` + "`" + `, ` + "`" + `AB` + "`" + ` …
- Ordering is by length first, then alphabetically: ` + "`" + `Z < AA` + "`" + `.
- The next id is the successor of the largest id in use, never a filled gap.
  Call ` + "`" + `allocate_card_id` + "`" + ` to get it.

## Option ids and full ids

- Options are numbered ` + "`" + `1` + "`" + `, ` + "`" + `2` + "`" + ` … with no leading zeros.
- A full id joins card and option: ` + "`" + `A1` + "`" + `, ` + "`" + `AB12` + "`" + `.

## Values

- An empty value is stored as JSON ` + "`" + `null` + "`" + ` with the key kept present.
- The literal string ` + "`" + `"null"` + "`" + ` is RESERVED. Never send it as a real value:
  pushes carrying it are rejected and nothing is written.

## Sync

- Only the source mode may push whole cards (` + "`" + `push_records` + "`" + `), never into itself.
- Fixed fields always follow the source: ` + "`" + `options` + "`" + `, ` + "`" + `selectOptions` + "`" + `, ` + "`" + `cardCount` + "`" + `, ` + "`" + `cardOrder` + "`" + `.
- Configurable fields follow it only when listed in sync_fields:
  ` + "`" + `title` + "`" + `, ` + "`" + `optionName` + "`" + `, ` + "`" + `optionValue` + "`" + `, ` + "`" + `optionUnit` + "`" + `.
- A synced field not listed in auth_fields becomes read-only in the target.
`
