package prompt

import "github.com/randalmurphal/diagramflow/pkg/diagramflow/template"

const systemPreamble = `You are a senior software architect and diagramming assistant.
You answer with a single JSON object and nothing else: no markdown fences, no commentary.`

var flowTemplate = template.Must("flow", `Create a flowchart for the following request.

REQUEST:
${user_input}
${template_hint}
OUTPUT SCHEMA (return exactly this JSON shape):
{
  "nodes": [
    {"id": "string", "type": "start-event|end-event|task|decision|api|service|database|cache|queue|gateway|client|default",
     "position": {"x": number, "y": number},
     "data": {"label": "string", "shape": "string", "color": "#rrggbb"}}
  ],
  "edges": [{"id": "string", "source": "node id", "target": "node id", "label": "optional string"}],
  "mermaid_code": "graph TD ..."
}

RULES:
1. Allowed shapes: ${shapes}.
2. Start with exactly one node of type "start-event" and finish with at least one "end-event".
3. Every decision uses shape "diamond" and has one outgoing edge per branch, each labelled.
4. Every edge source and target must be an existing node id. Node ids and edge ids are unique.
5. Place the main path as a vertical spine near x=${spine_x}, stepping y by ${step_y}.
6. Lay side branches out on a ${columns}-column grid spaced ${step_x} apart, symmetric around the spine.
7. Use at least 8 nodes for non-trivial processes.`)

var architectureTemplate = template.Must("architecture", `Create a ${title} diagram for the following request.

REQUEST:
${user_input}
${template_hint}
LAYERS (in this order):
${layers}

OUTPUT SCHEMA (return exactly this JSON shape):
{
  "layers": [
    {"name": "layer key", "layout": {"columns": ${columns}},
     "items": [{"id": "optional string", "label": "string", "tech_stack": ["string"], "note": "string", "category": "string"}]}
  ],
  "edges": [${edge_schema}]
}

RULES:
1. Use exactly the layer keys listed above, in order, each with 2 to 8 items.
2. Item labels are short noun phrases and unique across the diagram.
3. ${style}
4. ${edge_rule}
5. Do not emit coordinates; the renderer lays frames out on a ${columns}-column grid of ${item_width}x${item_height} cells.`)

var incrementalTemplate = template.Must("incremental", `You are extending an existing ${diagram_type} diagram. The user wants:

REQUEST:
${user_input}

EXISTING DIAGRAM SUMMARY:
${summary}

EXISTING DIAGRAM (JSON):
${graph_json}

${constraints}

PLACEMENT OF NEW NODES:
- Put every new top-level node at x >= ${safe_x} with y between ${min_y} and ${max_y}.
- Children of an existing layer frame keep coordinates relative to that frame.

NEW IDS:
- Give new nodes ids of the form "<type>-${stamp}-<n>", for example "${example_id}".
- Give new edges ids of the form "e-${stamp}-<n>".

OUTPUT SCHEMA:
Return the COMPLETE diagram as {"nodes": [...], "edges": [...]}: every existing node and edge exactly as given, followed by the additions.`)

var excalidrawTemplate = template.Must("excalidraw", `Draw the following request as an Excalidraw scene.

REQUEST:
${user_input}

OUTPUT SCHEMA (return exactly this JSON shape):
{
  "elements": [
    {"id": "string", "type": "rectangle|ellipse|diamond|text|arrow|line",
     "x": number, "y": number, "width": number, "height": number,
     "strokeColor": "#1e1e1e", "backgroundColor": "transparent",
     "text": "for text elements", "points": [[0, 0], [dx, dy]]}
  ],
  "appState": {"viewBackgroundColor": "#ffffff"},
  "files": {}
}

RULES:
1. Every arrow and line has a "points" array of at least two [x, y] pairs, relative to its own x and y, starting at [0, 0].
2. Label shapes with separate text elements placed inside them.
3. Keep the drawing within ${canvas_width} units wide with at least ${min_gap} units between shapes.
4. Element ids are unique.`)

var visionTemplate = template.Must("vision", `Recreate the diagram in the attached image as structured data.
${hint}
OUTPUT SCHEMA (return exactly this JSON shape):
{
  "nodes": [{"id": "string", "type": "string", "position": {"x": number, "y": number},
             "data": {"label": "text as written in the image", "shape": "string"}}],
  "edges": [{"id": "string", "source": "node id", "target": "node id", "label": "optional string"}]
}

RULES:
1. Copy labels exactly as written, in the original language.
2. Allowed shapes: ${shapes}.
3. Keep the relative placement of the image; scale coordinates so neighbouring shapes are at least ${step_x} apart horizontally and ${step_y} vertically.
4. Draw every arrow as an edge from its tail to its head.`)
