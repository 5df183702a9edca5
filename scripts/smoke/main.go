// Command smoke drives the happy path of a running progress-service
// instance: enroll, start and complete every module, then validate the
// issued certificate. Intended for post-deploy verification against a
// seeded environment.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"
)

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type client struct {
	base string
	http *http.Client
}

func (c *client) do(method, path string, body interface{}, out interface{}) (int, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, err
		}
	}
	req, err := http.NewRequest(method, c.base+path, &buf)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return resp.StatusCode, fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	if env.Error != nil {
		return resp.StatusCode, fmt.Errorf("%s %s: %s (%s)", method, path, env.Error.Message, env.Error.Code)
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode data of %s %s: %w", method, path, err)
		}
	}
	return resp.StatusCode, nil
}

func main() {
	var (
		base      string
		learnerID string
		courseID  string
		timeout   time.Duration
	)
	flag.StringVar(&base, "base", "http://localhost:8080/progress/v1", "API base URL including prefix")
	flag.StringVar(&learnerID, "learner", "", "Learner UUID to enroll")
	flag.StringVar(&courseID, "course", "", "Course ID to complete")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "HTTP client timeout")
	flag.Parse()

	if learnerID == "" || courseID == "" {
		log.Println("both -learner and -course are required")
		flag.Usage()
		os.Exit(2)
	}

	c := &client{base: base, http: &http.Client{Timeout: timeout}}

	var enrollment struct {
		ID string `json:"id"`
	}
	status, err := c.do(http.MethodPost, "/enrollments", map[string]string{
		"learner_id": learnerID,
		"course_id":  courseID,
	}, &enrollment)
	if err != nil {
		log.Fatalf("enroll failed (status %d): %v", status, err)
	}
	log.Printf("enrolled: %s", enrollment.ID)

	var modules []struct {
		ModuleID  string `json:"module_id"`
		Title     string `json:"title"`
		Completed bool   `json:"completed"`
	}
	if _, err := c.do(http.MethodGet, "/enrollments/"+enrollment.ID+"/modules", nil, &modules); err != nil {
		log.Fatalf("list modules failed: %v", err)
	}
	if len(modules) == 0 {
		log.Fatalf("course %s has no modules; seed the catalog first", courseID)
	}

	var completion struct {
		CompletionPercent int  `json:"completion_percent"`
		CourseCompleted   bool `json:"course_completed"`
	}
	for _, m := range modules {
		if m.Completed {
			continue
		}
		path := "/enrollments/" + enrollment.ID + "/modules/" + m.ModuleID
		if _, err := c.do(http.MethodPost, path+"/start", nil, nil); err != nil {
			log.Fatalf("start %q failed: %v", m.Title, err)
		}
		if _, err := c.do(http.MethodPost, path+"/complete", nil, &completion); err != nil {
			log.Fatalf("complete %q failed: %v", m.Title, err)
		}
		log.Printf("completed %q: %d%%", m.Title, completion.CompletionPercent)
	}
	if !completion.CourseCompleted {
		log.Fatalf("course did not complete after all modules (at %d%%)", completion.CompletionPercent)
	}

	var certs []struct {
		Code             string `json:"code"`
		CourseID         string `json:"course_id"`
		VerificationHash string `json:"verification_hash"`
	}
	if _, err := c.do(http.MethodGet, "/learners/"+learnerID+"/certificates", nil, &certs); err != nil {
		log.Fatalf("list certificates failed: %v", err)
	}
	code, hash := "", ""
	for _, cert := range certs {
		if cert.CourseID == courseID {
			code, hash = cert.Code, cert.VerificationHash
		}
	}
	if code == "" {
		log.Fatalf("no certificate issued for course %s", courseID)
	}

	var validation struct {
		Valid bool `json:"valid"`
	}
	query := "/certificates/validate?code=" + url.QueryEscape(code) + "&hash=" + url.QueryEscape(hash)
	if _, err := c.do(http.MethodGet, query, nil, &validation); err != nil {
		log.Fatalf("validate %s failed: %v", code, err)
	}
	if !validation.Valid {
		log.Fatalf("certificate %s did not validate", code)
	}
	log.Printf("certificate %s validated; smoke test passed", code)
}
