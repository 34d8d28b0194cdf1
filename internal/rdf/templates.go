package rdf

// DefaultTemplates returns the canonical query/update templates this gateway
// ships with, parsed once at construction (spec §9: "parse once at startup
// into a structured form with typed placeholders"). Callers with their own
// on-disk template files can use [LoadTemplateSet] instead and Register
// additional/overriding templates on top.
func DefaultTemplates() *TemplateSet {
	ts := &TemplateSet{templates: make(map[string]*Template)}
	for name, body := range map[string]string{
		"insertCorpuscle":    insertCorpuscleTemplate,
		"updateTier":         updateTierTemplate,
		"deleteCorpuscle":    deleteCorpuscleTemplate,
		"selectCorpuscles":   selectCorpusclesTemplate,
		"insertNavigation":   insertNavigationTemplate,
		"insertRelationship": insertRelationshipTemplate,
		"insertEnhancement":  insertEnhancementTemplate,
	} {
		ts.templates[name] = parseTemplate(name, body)
	}
	return ts
}

const insertCorpuscleTemplate = `
PREFIX ragno: <http://purl.org/stuff/ragno/>
PREFIX xsd: <http://www.w3.org/2001/XMLSchema#>
INSERT DATA {
  GRAPH ${graph} {
    ${id} a ragno:Corpuscle ;
      ragno:label ${prompt} ;
      ragno:content ${output} ;
      ragno:embedding ${embedding} ;
      ragno:timestamp ${timestamp} ;
      ragno:accessCount ${accessCount} ;
      ragno:decayFactor ${decayFactor} ;
      ragno:tier ${tier} ${conceptTriples} .
  }
}`

const updateTierTemplate = `
PREFIX ragno: <http://purl.org/stuff/ragno/>
WITH ${graph}
DELETE { ${id} ragno:tier ?old }
INSERT { ${id} ragno:tier ${tier} }
WHERE { ${id} ragno:tier ?old }`

const deleteCorpuscleTemplate = `
PREFIX ragno: <http://purl.org/stuff/ragno/>
WITH ${graph}
DELETE { ${id} ?p ?o }
WHERE { ${id} ?p ?o }`

const selectCorpusclesTemplate = `
PREFIX ragno: <http://purl.org/stuff/ragno/>
SELECT ?s ?label ?content ?embedding ?timestamp ?accessCount ?decayFactor ?tier (GROUP_CONCAT(?kw; separator="|||") AS ?concepts)
FROM ${graph}
WHERE {
  ?s a ragno:Corpuscle ;
     ragno:label ?label ;
     ragno:content ?content ;
     ragno:embedding ?embedding ;
     ragno:timestamp ?timestamp ;
     ragno:accessCount ?accessCount ;
     ragno:decayFactor ?decayFactor ;
     ragno:tier ?tier .
  OPTIONAL { ?s ragno:hasKeyword ?kw }
}
GROUP BY ?s ?label ?content ?embedding ?timestamp ?accessCount ?decayFactor ?tier
LIMIT ${limit}`

const insertNavigationTemplate = `
PREFIX ragno: <http://purl.org/stuff/ragno/>
INSERT DATA {
  GRAPH ${graph} {
    ${id} a ragno:NavigationView ;
      ragno:timestamp ${timestamp} ;
      ragno:query ${query} ;
      ragno:zoom ${zoom} ;
      ragno:tilt ${tilt} ;
      ragno:answerDigest ${digest} ;
      ragno:inSession ${session} .
  }
}`

const insertRelationshipTemplate = `
PREFIX ragno: <http://purl.org/stuff/ragno/>
INSERT DATA {
  GRAPH ${graph} {
    ${id} a ragno:Relationship ;
      ragno:source ${source} ;
      ragno:target ${target} ;
      ragno:weight ${weight} .
  }
}`

const insertEnhancementTemplate = `
PREFIX ragno: <http://purl.org/stuff/ragno/>
INSERT DATA {
  GRAPH ${graph} {
    ${id} a ragno:Enhancement ;
      ragno:pipeline ${pipeline} ;
      ragno:forQuestion ${question} ;
      ragno:content ${content} .
  }
}`
